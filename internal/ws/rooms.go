package ws

import "sync"

// RoomTracker maps conversations to the sessions currently joined to them.
// Membership here is ephemeral and explicit: a session only receives a
// conversation's live events between join and leave, regardless of its
// durable participant status. Authorization happens in the hub before Join
// is ever called.
type RoomTracker struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Session]struct{}
	joined map[*Session]map[string]struct{}
}

// NewRoomTracker creates an empty tracker.
func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		rooms:  make(map[string]map[*Session]struct{}),
		joined: make(map[*Session]map[string]struct{}),
	}
}

// Join subscribes the session to the conversation's room. Idempotent.
func (t *RoomTracker) Join(conversationID string, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[conversationID]; !ok {
		t.rooms[conversationID] = make(map[*Session]struct{})
	}
	t.rooms[conversationID][s] = struct{}{}
	if _, ok := t.joined[s]; !ok {
		t.joined[s] = make(map[string]struct{})
	}
	t.joined[s][conversationID] = struct{}{}
}

// Leave unsubscribes the session from the room. Idempotent.
func (t *RoomTracker) Leave(conversationID string, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(conversationID, s)
}

// LeaveAll clears every room the session was in and returns the conversation
// ids it left. Called on disconnect so membership never leaks across
// reconnects.
func (t *RoomTracker) LeaveAll(s *Session) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	left := make([]string, 0, len(t.joined[s]))
	for conversationID := range t.joined[s] {
		left = append(left, conversationID)
		t.removeLocked(conversationID, s)
	}
	return left
}

// Members returns a snapshot of the sessions joined to the conversation.
func (t *RoomTracker) Members(conversationID string) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := make([]*Session, 0, len(t.rooms[conversationID]))
	for s := range t.rooms[conversationID] {
		members = append(members, s)
	}
	return members
}

func (t *RoomTracker) removeLocked(conversationID string, s *Session) {
	if members, ok := t.rooms[conversationID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(t.rooms, conversationID)
		}
	}
	if rooms, ok := t.joined[s]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(t.joined, s)
		}
	}
}

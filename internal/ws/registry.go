package ws

import "sync"

// SessionRegistry tracks which sessions each user currently holds. A user is
// online exactly while its session set is non-empty. The session handle
// carries its owning user id, so reverse lookup on unregister is O(1).
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[string]map[*Session]struct{}
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byUser: make(map[string]map[*Session]struct{})}
}

// Register adds the session and reports whether it is the user's first, i.e.
// whether the user just came online.
func (r *SessionRegistry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		r.byUser[s.UserID] = set
	}
	first := len(set) == 0
	set[s] = struct{}{}
	return first
}

// Unregister removes the session and reports whether the user went offline
// with it.
func (r *SessionRegistry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[s.UserID]
	if !ok {
		return false
	}
	if _, present := set[s]; !present {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.byUser, s.UserID)
		return true
	}
	return false
}

// SessionsFor returns a snapshot of the user's active sessions, used for
// user-directed delivery.
func (r *SessionRegistry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.byUser[userID]))
	for s := range r.byUser[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// All returns a snapshot of every registered session.
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sessions []*Session
	for _, set := range r.byUser {
		for s := range set {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Online reports whether the user has at least one active session.
func (r *SessionRegistry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

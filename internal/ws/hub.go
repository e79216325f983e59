package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	// ErrUnauthorized means no identity could be resolved for the acting session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity resolved but is not a conversation participant.
	ErrForbidden = errors.New("not a conversation participant")
	// ErrInvalidInput covers malformed operation input such as empty content.
	ErrInvalidInput = errors.New("invalid input")
)

// sendShards sizes the per-conversation lock table. Sends inside one
// conversation serialize on a shard; different conversations proceed in
// parallel (up to hash collisions).
const sendShards = 64

// Hub is the realtime conversation core. It owns the session registry and
// room tracker, authorizes and persists messages, and fans events out to the
// sessions currently joined to each conversation's room.
type Hub struct {
	sessions *SessionRegistry
	rooms    *RoomTracker

	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository

	sendLocks [sendShards]sync.Mutex
}

// NewHub creates a hub over the given persistence repositories.
func NewHub(conversations repositories.ConversationRepository, messages repositories.MessageRepository) *Hub {
	return &Hub{
		sessions:      NewSessionRegistry(),
		rooms:         NewRoomTracker(),
		conversations: conversations,
		messages:      messages,
	}
}

// Connect registers the session. When it is the user's first session the user
// came online and every other connected session hears about it.
func (h *Hub) Connect(s *Session) {
	if h.sessions.Register(s) {
		h.broadcastAll(models.ServerEvent{Type: models.EventUserOnline, UserID: s.UserID}, s)
	}
}

// Disconnect runs both cleanup steps unconditionally: room membership first,
// then presence. Neither can abort the other.
func (h *Hub) Disconnect(s *Session) {
	h.rooms.LeaveAll(s)
	wentOffline := h.sessions.Unregister(s)
	s.Close()
	if wentOffline {
		h.broadcastAll(models.ServerEvent{Type: models.EventUserOffline, UserID: s.UserID}, s)
	}
}

// JoinConversation subscribes the session to a conversation's live events.
// Only durable participants may join; the check happens here, before the
// tracker is touched. Idempotent.
func (h *Hub) JoinConversation(ctx context.Context, s *Session, conversationID string) error {
	if s.UserID == "" {
		return ErrUnauthorized
	}
	if err := h.requireParticipant(ctx, conversationID, s.UserID); err != nil {
		return err
	}
	h.rooms.Join(conversationID, s)
	return nil
}

// LeaveConversation unsubscribes the session. Idempotent, no authorization.
func (h *Hub) LeaveConversation(s *Session, conversationID string) {
	h.rooms.Leave(conversationID, s)
}

// SendMessage authorizes, persists and broadcasts one message. Persist and
// fan-out run under the conversation's send lock, so room members observe
// message_received events in exactly the order messages were persisted. A
// storage failure aborts before any broadcast.
func (h *Hub) SendMessage(ctx context.Context, userID, conversationID, content, messageType string) (models.Message, error) {
	if userID == "" {
		return models.Message{}, ErrUnauthorized
	}
	if content == "" {
		return models.Message{}, fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	if messageType == "" {
		messageType = models.MessageText
	}
	if !models.ValidMessageType(messageType) {
		return models.Message{}, fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, messageType)
	}
	if err := h.requireParticipant(ctx, conversationID, userID); err != nil {
		return models.Message{}, err
	}

	lock := h.sendLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.messages.CreateMessage(ctx, conversationID, userID, content, messageType)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	if err := h.conversations.TouchConversation(ctx, conversationID, msg.SentAt); err != nil {
		// No partial broadcast: nobody may see the message while the
		// conversation's recency timestamp lags behind it.
		return models.Message{}, fmt.Errorf("touch conversation: %w", err)
	}

	h.broadcastRoom(conversationID, models.ServerEvent{Type: models.EventMessageReceived, Message: &msg}, nil)
	return msg, nil
}

// Typing relays a typing indicator to the other sessions in the room. No
// persistence and no participant check: it is cheap, ephemeral state and the
// sender's own session never hears it.
func (h *Hub) Typing(s *Session, conversationID string, isTyping bool) {
	if s.UserID == "" {
		return
	}
	h.broadcastRoom(conversationID, models.ServerEvent{
		Type:           models.EventUserTyping,
		UserID:         s.UserID,
		ConversationID: conversationID,
		IsTyping:       &isTyping,
	}, s)
}

// DeleteMessage soft-deletes a message on behalf of its sender and notifies
// the room. Anything other than "exists, not yet deleted, sent by the caller"
// reads as not found; ownership is not leaked.
func (h *Hub) DeleteMessage(ctx context.Context, userID, messageID string) (models.Message, error) {
	if userID == "" {
		return models.Message{}, ErrUnauthorized
	}
	msg, err := h.messages.FindMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted || msg.SenderID != userID {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if err := h.messages.SoftDeleteMessage(ctx, messageID, userID); err != nil {
		return models.Message{}, err
	}

	h.broadcastRoom(msg.ConversationID, models.ServerEvent{
		Type:           models.EventMessageDeleted,
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
	}, nil)
	return msg, nil
}

// SendError delivers an error event to the originating session only.
func (h *Hub) SendError(s *Session, message string) {
	payload, err := json.Marshal(models.ServerEvent{Type: models.EventError, Error: message})
	if err != nil {
		return
	}
	s.enqueue(payload)
}

func (h *Hub) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("verify participant: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// broadcastRoom fans an event out to the sessions joined to the conversation,
// optionally skipping one. The payload is marshaled once; undeliverable
// sessions are skipped, never treated as a broadcast failure.
func (h *Hub) broadcastRoom(conversationID string, event models.ServerEvent, skip *Session) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal %s event: %v", event.Type, err)
		return
	}
	for _, s := range h.rooms.Members(conversationID) {
		if s == skip {
			continue
		}
		if !s.enqueue(payload) {
			log.Printf("dropped %s event for session %s", event.Type, s.ID)
		}
	}
}

// broadcastAll delivers a presence event to every connected session except
// the originating one.
func (h *Hub) broadcastAll(event models.ServerEvent, skip *Session) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal %s event: %v", event.Type, err)
		return
	}
	for _, s := range h.sessions.All() {
		if s == skip {
			continue
		}
		if !s.enqueue(payload) {
			log.Printf("dropped %s event for session %s", event.Type, s.ID)
		}
	}
}

func (h *Hub) sendLock(conversationID string) *sync.Mutex {
	hash := fnv.New32a()
	hash.Write([]byte(conversationID))
	return &h.sendLocks[hash.Sum32()%sendShards]
}

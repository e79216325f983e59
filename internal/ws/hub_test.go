package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func newTestHub() (*Hub, *mocks.ConversationRepositoryMock, *mocks.MessageRepositoryMock) {
	conversations := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	return NewHub(conversations, messages), conversations, messages
}

func nextEvent(t *testing.T, s *Session) models.ServerEvent {
	t.Helper()
	select {
	case payload := <-s.send:
		var event models.ServerEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	default:
		t.Fatalf("no event queued for session %s", s.ID)
		return models.ServerEvent{}
	}
}

func requireNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case payload := <-s.send:
		t.Fatalf("unexpected event queued: %s", payload)
	default:
	}
}

func joinedSession(t *testing.T, hub *Hub, conversations *mocks.ConversationRepositoryMock, userID, conversationID string) *Session {
	t.Helper()
	s := NewSession(userID, nil)
	hub.Connect(s)
	conversations.On("IsParticipant", mock.Anything, conversationID, userID).Return(true, nil).Once()
	require.NoError(t, hub.JoinConversation(context.Background(), s, conversationID))
	return s
}

func TestSendMessageBroadcastsToRoomMembers(t *testing.T) {
	hub, conversations, messages := newTestHub()
	alice := joinedSession(t, hub, conversations, "alice", "conv-1")
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")
	// drain presence traffic from the second connect
	nextEvent(t, alice)

	sentAt := time.Now()
	stored := models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", SenderName: "Alice", Content: "hello", MessageType: models.MessageText, SentAt: sentAt}
	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "hello", models.MessageText).Return(stored, nil).Once()
	conversations.On("TouchConversation", mock.Anything, "conv-1", sentAt).Return(nil).Once()

	msg, err := hub.SendMessage(context.Background(), "alice", "conv-1", "hello", "")

	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	for _, s := range []*Session{alice, bob} {
		event := nextEvent(t, s)
		assert.Equal(t, models.EventMessageReceived, event.Type)
		require.NotNil(t, event.Message)
		assert.Equal(t, "hello", event.Message.Content)
		assert.Equal(t, "alice", event.Message.SenderID)
	}
	conversations.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendMessageFromNonParticipantIsForbidden(t *testing.T) {
	hub, conversations, messages := newTestHub()
	member := joinedSession(t, hub, conversations, "alice", "conv-1")

	conversations.On("IsParticipant", mock.Anything, "conv-1", "carol").Return(false, nil).Once()

	_, err := hub.SendMessage(context.Background(), "carol", "conv-1", "hi", "")

	require.ErrorIs(t, err, ErrForbidden)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	requireNoEvent(t, member)
}

func TestSendMessageValidation(t *testing.T) {
	hub, conversations, _ := newTestHub()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = hub.SendMessage(context.Background(), "alice", "conv-1", "hi", "video")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = hub.SendMessage(context.Background(), "", "conv-1", "hi", "")
	require.ErrorIs(t, err, ErrUnauthorized)

	conversations.AssertNotCalled(t, "IsParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageStorageFailureSkipsBroadcast(t *testing.T) {
	hub, conversations, messages := newTestHub()
	alice := joinedSession(t, hub, conversations, "alice", "conv-1")

	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "hello", models.MessageText).Return(models.Message{}, assert.AnError).Once()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "hello", "")

	require.Error(t, err)
	requireNoEvent(t, alice)
	conversations.AssertNotCalled(t, "TouchConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageTouchFailureSkipsBroadcast(t *testing.T) {
	hub, conversations, messages := newTestHub()
	alice := joinedSession(t, hub, conversations, "alice", "conv-1")

	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "hello", models.MessageText).
		Return(models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Content: "hello"}, nil).Once()
	conversations.On("TouchConversation", mock.Anything, "conv-1", mock.Anything).Return(assert.AnError).Once()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "hello", "")

	require.Error(t, err)
	requireNoEvent(t, alice)
}

func TestSendMessageBroadcastOrderMatchesPersistOrder(t *testing.T) {
	hub, conversations, messages := newTestHub()
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")

	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil)
	conversations.On("TouchConversation", mock.Anything, "conv-1", mock.Anything).Return(nil)
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "first", models.MessageText).
		Return(models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Content: "first"}, nil).Once()
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "second", models.MessageText).
		Return(models.Message{ID: "m2", ConversationID: "conv-1", SenderID: "alice", Content: "second"}, nil).Once()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "first", "")
	require.NoError(t, err)
	_, err = hub.SendMessage(context.Background(), "alice", "conv-1", "second", "")
	require.NoError(t, err)

	assert.Equal(t, "first", nextEvent(t, bob).Message.Content)
	assert.Equal(t, "second", nextEvent(t, bob).Message.Content)
}

func TestSessionOutsideRoomReceivesNothing(t *testing.T) {
	hub, conversations, messages := newTestHub()
	alice := joinedSession(t, hub, conversations, "alice", "conv-1")
	// bob is a durable participant but never joined the room
	bob := NewSession("bob", nil)
	hub.Connect(bob)
	nextEvent(t, alice) // bob's user_online

	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil).Once()
	conversations.On("TouchConversation", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", "hello", models.MessageText).
		Return(models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Content: "hello"}, nil).Once()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "hello", "")

	require.NoError(t, err)
	nextEvent(t, alice)
	requireNoEvent(t, bob)
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub, conversations, messages := newTestHub()
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")

	conversations.On("IsParticipant", mock.Anything, "conv-1", "alice").Return(true, nil)
	conversations.On("TouchConversation", mock.Anything, "conv-1", mock.Anything).Return(nil)
	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", mock.Anything, models.MessageText).
		Return(models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Content: "before"}, nil).Once()

	_, err := hub.SendMessage(context.Background(), "alice", "conv-1", "before", "")
	require.NoError(t, err)
	assert.Equal(t, "before", nextEvent(t, bob).Message.Content)

	hub.LeaveConversation(bob, "conv-1")

	messages.On("CreateMessage", mock.Anything, "conv-1", "alice", mock.Anything, models.MessageText).
		Return(models.Message{ID: "m2", ConversationID: "conv-1", SenderID: "alice", Content: "after"}, nil).Once()
	_, err = hub.SendMessage(context.Background(), "alice", "conv-1", "after", "")
	require.NoError(t, err)
	requireNoEvent(t, bob)
}

func TestJoinConversationRequiresParticipation(t *testing.T) {
	hub, conversations, _ := newTestHub()
	s := NewSession("carol", nil)
	hub.Connect(s)

	conversations.On("IsParticipant", mock.Anything, "conv-1", "carol").Return(false, nil).Once()

	err := hub.JoinConversation(context.Background(), s, "conv-1")

	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, hub.rooms.Members("conv-1"))
}

func TestTypingExcludesSenderSession(t *testing.T) {
	hub, conversations, _ := newTestHub()
	alice := joinedSession(t, hub, conversations, "alice", "conv-1")
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")
	nextEvent(t, alice) // bob's user_online

	hub.Typing(alice, "conv-1", true)

	event := nextEvent(t, bob)
	assert.Equal(t, models.EventUserTyping, event.Type)
	assert.Equal(t, "alice", event.UserID)
	require.NotNil(t, event.IsTyping)
	assert.True(t, *event.IsTyping)
	requireNoEvent(t, alice)

	hub.Typing(alice, "conv-1", false)
	stopped := nextEvent(t, bob)
	require.NotNil(t, stopped.IsTyping)
	assert.False(t, *stopped.IsTyping)
}

func TestDeleteMessageBySenderBroadcasts(t *testing.T) {
	hub, conversations, messages := newTestHub()
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")

	stored := models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice"}
	messages.On("FindMessage", mock.Anything, "m1").Return(stored, nil).Once()
	messages.On("SoftDeleteMessage", mock.Anything, "m1", "alice").Return(nil).Once()

	_, err := hub.DeleteMessage(context.Background(), "alice", "m1")

	require.NoError(t, err)
	event := nextEvent(t, bob)
	assert.Equal(t, models.EventMessageDeleted, event.Type)
	assert.Equal(t, "m1", event.MessageID)
	assert.Equal(t, "conv-1", event.ConversationID)
}

func TestDeleteMessageByNonSenderIsNotFound(t *testing.T) {
	hub, conversations, messages := newTestHub()
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")

	stored := models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice"}
	messages.On("FindMessage", mock.Anything, "m1").Return(stored, nil).Once()

	_, err := hub.DeleteMessage(context.Background(), "bob", "m1")

	require.ErrorIs(t, err, repositories.ErrMessageNotFound)
	messages.AssertNotCalled(t, "SoftDeleteMessage", mock.Anything, mock.Anything, mock.Anything)
	requireNoEvent(t, bob)
}

func TestDeleteAlreadyDeletedMessageIsNotFound(t *testing.T) {
	hub, _, messages := newTestHub()

	stored := models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", IsDeleted: true}
	messages.On("FindMessage", mock.Anything, "m1").Return(stored, nil).Once()

	_, err := hub.DeleteMessage(context.Background(), "alice", "m1")

	require.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestPresenceLifecycle(t *testing.T) {
	hub, _, _ := newTestHub()
	alice := NewSession("alice", nil)
	hub.Connect(alice)

	bobFirst := NewSession("bob", nil)
	hub.Connect(bobFirst)
	online := nextEvent(t, alice)
	assert.Equal(t, models.EventUserOnline, online.Type)
	assert.Equal(t, "bob", online.UserID)

	// second device: no duplicate online event
	bobSecond := NewSession("bob", nil)
	hub.Connect(bobSecond)
	requireNoEvent(t, alice)

	hub.Disconnect(bobFirst)
	requireNoEvent(t, alice)

	hub.Disconnect(bobSecond)
	offline := nextEvent(t, alice)
	assert.Equal(t, models.EventUserOffline, offline.Type)
	assert.Equal(t, "bob", offline.UserID)
}

func TestDisconnectClearsRoomMembership(t *testing.T) {
	hub, conversations, _ := newTestHub()
	bob := joinedSession(t, hub, conversations, "bob", "conv-1")

	hub.Disconnect(bob)

	assert.Empty(t, hub.rooms.Members("conv-1"))
	assert.False(t, hub.sessions.Online("bob"))
}

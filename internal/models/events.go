package models

import "fmt"

// Client-to-server event names.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventDeleteMessage     = "delete_message"
)

// Server-to-client event names.
const (
	EventUserOnline      = "user_online"
	EventUserOffline     = "user_offline"
	EventMessageReceived = "message_received"
	EventMessageDeleted  = "message_deleted"
	EventUserTyping      = "user_typing"
	EventError           = "error"
)

// ClientEvent is one inbound websocket frame. The payload is validated here
// before it reaches the hub; unknown or malformed frames never do.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
}

// Validate checks that the event names a known type and carries the fields
// that type requires.
func (e ClientEvent) Validate() error {
	switch e.Type {
	case EventJoinConversation, EventLeaveConversation, EventTypingStart, EventTypingStop:
		if e.ConversationID == "" {
			return fmt.Errorf("%s: missing conversation_id", e.Type)
		}
	case EventSendMessage:
		if e.ConversationID == "" {
			return fmt.Errorf("%s: missing conversation_id", e.Type)
		}
		if e.Content == "" {
			return fmt.Errorf("%s: empty content", e.Type)
		}
		if e.MessageType != "" && !ValidMessageType(e.MessageType) {
			return fmt.Errorf("%s: unknown message type %q", e.Type, e.MessageType)
		}
	case EventDeleteMessage:
		if e.MessageID == "" {
			return fmt.Errorf("%s: missing message_id", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// ServerEvent is one outbound websocket frame.
type ServerEvent struct {
	Type           string   `json:"type"`
	UserID         string   `json:"user_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	IsTyping       *bool    `json:"is_typing,omitempty"`
	Error          string   `json:"error,omitempty"`
}

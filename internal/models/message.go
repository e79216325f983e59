package models

import "time"

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// Message is a persisted conversation message. Deletes are soft: the row
// stays, IsDeleted flips, and listings filter it out.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	SenderID       string     `db:"sender_id" json:"sender_id"`
	SenderName     string     `db:"sender_name" json:"sender_name,omitempty"`
	Content        string     `db:"content" json:"content"`
	MessageType    string     `db:"message_type" json:"message_type"`
	SentAt         time.Time  `db:"sent_at" json:"sent_at"`
	EditedAt       *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
}

// ValidMessageType reports whether t is a known message content type.
func ValidMessageType(t string) bool {
	return t == MessageText || t == MessageImage || t == MessageFile
}

package models

import "time"

// Conversation kinds.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Participant roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Conversation is a message thread between a durable set of participants.
// UpdatedAt is bumped whenever a message is stored, so listing by it yields
// recency order.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	Type      string    `db:"type" json:"type"`
	Name      string    `db:"name" json:"name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Participant is the durable membership of a user in a conversation,
// distinct from live room membership which only exists while a session
// is joined.
type Participant struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           string    `db:"role" json:"role"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
	UserName       string    `db:"user_name" json:"user_name,omitempty"`
}

// ConversationDetails is the API view of a conversation with its participants.
type ConversationDetails struct {
	Conversation
	Participants []Participant `json:"participants"`
}

// ValidConversationType reports whether t is a known conversation kind.
func ValidConversationType(t string) bool {
	return t == ConversationDirect || t == ConversationGroup
}

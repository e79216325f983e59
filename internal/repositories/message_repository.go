package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID, content, messageType string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string, skip, take int) ([]models.Message, error)
	FindMessage(ctx context.Context, messageID string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID, senderID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message; sent_at is assigned by the store.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID, content, messageType string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, message_type)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, conversation_id, sender_id, content, message_type, sent_at, edited_at, is_deleted,
                   (SELECT name FROM users WHERE id = $3) AS sender_name`,
		uuid.NewString(), conversationID, senderID, content, messageType).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.MessageType,
			&msg.SentAt, &msg.EditedAt, &msg.IsDeleted, &msg.SenderName)
	return msg, err
}

// ListMessages returns non-deleted messages newest first, ties broken by
// insertion order.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string, skip, take int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
                m.sent_at, m.edited_at, m.is_deleted, u.name AS sender_name
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.conversation_id=$1 AND m.is_deleted = FALSE
         ORDER BY m.sent_at DESC, m.seq DESC
         OFFSET $2 LIMIT $3`,
		conversationID, skip, take)
	return msgs, err
}

// FindMessage retrieves a single message regardless of its deleted state.
func (r *MessageRepo) FindMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
                m.sent_at, m.edited_at, m.is_deleted, u.name AS sender_name
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.id=$1`,
		messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage flags the message deleted when invoked by its sender.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID, senderID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE
         WHERE id=$1 AND sender_id=$2 AND is_deleted = FALSE`,
		messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

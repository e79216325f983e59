package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

// ConversationRepository abstracts conversation and participant persistence.
// IsParticipant and FindParticipant back the authorization checks: every
// message read or write goes through one of them first.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, creatorID, convType, name string, participantIDs []string) (models.ConversationDetails, error)
	GetConversation(ctx context.Context, conversationID, userID string) (models.ConversationDetails, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	FindParticipant(ctx context.Context, conversationID, userID string) (models.Participant, error)
	TouchConversation(ctx context.Context, conversationID string, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation inserts the conversation and its participant rows in one
// transaction. The creator becomes admin; duplicate participant ids collapse
// to a single row.
func (r *ConversationRepo) CreateConversation(ctx context.Context, creatorID, convType, name string, participantIDs []string) (models.ConversationDetails, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ConversationDetails{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, type, name) VALUES ($1, $2, $3)
         RETURNING id, type, name, created_at, updated_at`,
		uuid.NewString(), convType, name).
		Scan(&conv.ID, &conv.Type, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return models.ConversationDetails{}, err
	}

	insert := `INSERT INTO conversation_participants (id, conversation_id, user_id, role)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (conversation_id, user_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), conv.ID, creatorID, models.RoleAdmin); err != nil {
		return models.ConversationDetails{}, err
	}
	for _, userID := range participantIDs {
		if userID == creatorID {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), conv.ID, userID, models.RoleMember); err != nil {
			return models.ConversationDetails{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.ConversationDetails{}, err
	}

	participants, err := r.listParticipants(ctx, conv.ID)
	if err != nil {
		return models.ConversationDetails{}, err
	}
	return models.ConversationDetails{Conversation: conv, Participants: participants}, nil
}

// GetConversation fetches a conversation visible to the user; callers that
// are not participants get ErrConversationNotFound rather than a hint that
// the conversation exists.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID, userID string) (models.ConversationDetails, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT c.id, c.type, c.name, c.created_at, c.updated_at
         FROM conversations c
         JOIN conversation_participants cp ON cp.conversation_id = c.id
         WHERE c.id=$1 AND cp.user_id=$2`,
		conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationDetails{}, ErrConversationNotFound
	}
	if err != nil {
		return models.ConversationDetails{}, err
	}

	participants, err := r.listParticipants(ctx, conversationID)
	if err != nil {
		return models.ConversationDetails{}, err
	}
	return models.ConversationDetails{Conversation: conv, Participants: participants}, nil
}

// ListConversationsForUser returns the user's conversations, most recently
// active first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT c.id, c.type, c.name, c.created_at, c.updated_at
         FROM conversations c
         JOIN conversation_participants cp ON cp.conversation_id = c.id
         WHERE cp.user_id=$1
         ORDER BY c.updated_at DESC`,
		userID)
	return convs, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// FindParticipant fetches the participant row linking the user to the
// conversation.
func (r *ConversationRepo) FindParticipant(ctx context.Context, conversationID, userID string) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p,
		`SELECT id, conversation_id, user_id, role, joined_at
         FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

// TouchConversation sets updated_at, keeping it at or above the newest
// message's sent_at.
func (r *ConversationRepo) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id=$1`,
		conversationID, at)
	return err
}

func (r *ConversationRepo) listParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT cp.id, cp.conversation_id, cp.user_id, cp.role, cp.joined_at, u.name AS user_name
         FROM conversation_participants cp
         JOIN users u ON u.id = cp.user_id
         WHERE cp.conversation_id=$1
         ORDER BY cp.joined_at ASC`,
		conversationID)
	return participants, err
}

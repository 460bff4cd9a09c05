package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/models"
)

// MessageRepository handles direct-chat message database operations. Chat
// history is scoped to (companion, user): each user has their own thread with
// a companion.
type MessageRepository struct {
	db *database.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateTx inserts a message inside a caller-owned transaction.
func (r *MessageRepository) CreateTx(ctx context.Context, tx pgx.Tx, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO messages (id, companion_id, user_id, role, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query, msg.ID, msg.CompanionID, msg.UserID, msg.Role, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// History returns the user's thread with a companion in chronological order.
func (r *MessageRepository) History(ctx context.Context, companionID, userID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	// Newest window first, then flipped so callers get chronological order.
	query := `
		SELECT id, companion_id, user_id, role, content, created_at
		FROM (
			SELECT id, companion_id, user_id, role, content, created_at
			FROM messages
			WHERE companion_id = $1 AND user_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, companionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.CompanionID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Clear deletes the user's thread with one companion.
func (r *MessageRepository) Clear(ctx context.Context, companionID, userID string) (int64, error) {
	deleted, err := r.db.Exec(ctx, `DELETE FROM messages WHERE companion_id = $1 AND user_id = $2`, companionID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return deleted, nil
}

// ClearAll deletes every direct-chat thread the user has.
func (r *MessageRepository) ClearAll(ctx context.Context, userID string) (int64, error) {
	deleted, err := r.db.Exec(ctx, `DELETE FROM messages WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear all messages: %w", err)
	}
	return deleted, nil
}

// Count returns the total number of direct-chat messages.
func (r *MessageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

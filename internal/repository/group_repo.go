package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/models"
)

var (
	// ErrGroupNotFound is returned when a group chat is not found
	ErrGroupNotFound = errors.New("group chat not found")
	// ErrMemberExists is returned when adding a companion already in the group
	ErrMemberExists = errors.New("companion is already a member")
	// ErrMemberNotFound is returned when removing a companion not in the group
	ErrMemberNotFound = errors.New("companion is not a member")
)

// GroupRepository handles group chat database operations
type GroupRepository struct {
	db *database.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *database.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateTx inserts a group chat with its initial members inside a
// caller-owned transaction, so the creation debit commits with it.
func (r *GroupRepository) CreateTx(ctx context.Context, tx pgx.Tx, group *models.GroupChat, memberIDs []string) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}

	query := `
		INSERT INTO group_chats (id, creator_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query, group.ID, group.CreatorID, group.Name).Scan(&group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group chat: %w", err)
	}

	for _, companionID := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_chat_members (group_chat_id, companion_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, group.ID, companionID); err != nil {
			return fmt.Errorf("failed to add group member: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a group chat with its members loaded.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.GroupChat, error) {
	query := `
		SELECT id, creator_id, name, created_at, updated_at
		FROM group_chats
		WHERE id = $1
	`
	var group models.GroupChat
	err := r.db.QueryRow(ctx, query, id).Scan(&group.ID, &group.CreatorID, &group.Name, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group chat: %w", err)
	}

	members, err := r.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Members = members
	return &group, nil
}

// Members returns the group's companions in join order.
func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]models.Companion, error) {
	query := `
		SELECT c.id, c.user_id, c.user_name, COALESCE(c.category_id::text, ''), c.src, c.name, c.description,
			c.instructions, c.seed, c.message_delay, c.send_multiple_messages, c.xp_earned, c.created_at, c.updated_at
		FROM companions c
		JOIN group_chat_members m ON m.companion_id = c.id
		WHERE m.group_chat_id = $1
		ORDER BY m.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	return scanCompanions(rows)
}

// ListByCreator returns the user's group chats with members loaded, newest
// first.
func (r *GroupRepository) ListByCreator(ctx context.Context, creatorID string) ([]models.GroupChat, error) {
	query := `
		SELECT id, creator_id, name, created_at, updated_at
		FROM group_chats
		WHERE creator_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group chats: %w", err)
	}
	defer rows.Close()

	var groups []models.GroupChat
	for rows.Next() {
		var g models.GroupChat
		if err := rows.Scan(&g.ID, &g.CreatorID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group chat: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := r.Members(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

// AddMember adds a companion to a group owned by creatorID.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, creatorID, companionID string) error {
	if err := r.requireOwnership(ctx, groupID, creatorID); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO group_chat_members (group_chat_id, companion_id)
		VALUES ($1, $2)`, groupID, companionID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember removes a companion from a group owned by creatorID.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, creatorID, companionID string) error {
	if err := r.requireOwnership(ctx, groupID, creatorID); err != nil {
		return err
	}

	rowsAffected, err := r.db.Exec(ctx, `
		DELETE FROM group_chat_members
		WHERE group_chat_id = $1 AND companion_id = $2`, groupID, companionID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Delete deletes a group chat owned by creatorID. Members and messages
// cascade.
func (r *GroupRepository) Delete(ctx context.Context, groupID, creatorID string) error {
	rowsAffected, err := r.db.Exec(ctx, `DELETE FROM group_chats WHERE id = $1 AND creator_id = $2`, groupID, creatorID)
	if err != nil {
		return fmt.Errorf("failed to delete group chat: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) requireOwnership(ctx context.Context, groupID, creatorID string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_chats WHERE id = $1 AND creator_id = $2)`,
		groupID, creatorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check group ownership: %w", err)
	}
	if !exists {
		return ErrGroupNotFound
	}
	return nil
}

// CreateMessageTx inserts a group message inside a caller-owned transaction.
func (r *GroupRepository) CreateMessageTx(ctx context.Context, tx pgx.Tx, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO group_messages (id, group_chat_id, sender_id, is_bot, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query, msg.ID, msg.GroupChatID, msg.SenderID, msg.IsBot, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group message: %w", err)
	}
	return nil
}

// Messages returns the group's history in chronological order.
func (r *GroupRepository) Messages(ctx context.Context, groupID string, limit int) ([]models.GroupMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, group_chat_id, sender_id, is_bot, content, created_at
		FROM (
			SELECT id, group_chat_id, sender_id, is_bot, content, created_at
			FROM group_messages
			WHERE group_chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query group messages: %w", err)
	}
	defer rows.Close()

	var messages []models.GroupMessage
	for rows.Next() {
		var m models.GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupChatID, &m.SenderID, &m.IsBot, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessagesSince returns messages created after a known message, oldest first.
// Clients poll with their latest seen ID to pick up paced bot replies.
func (r *GroupRepository) MessagesSince(ctx context.Context, groupID, afterID string) ([]models.GroupMessage, error) {
	query := `
		SELECT id, group_chat_id, sender_id, is_bot, content, created_at
		FROM group_messages
		WHERE group_chat_id = $1
		  AND created_at > (SELECT created_at FROM group_messages WHERE id = $2)
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, groupID, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group messages: %w", err)
	}
	defer rows.Close()

	var messages []models.GroupMessage
	for rows.Next() {
		var m models.GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupChatID, &m.SenderID, &m.IsBot, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ClearMessages deletes the group's history for a group owned by creatorID.
func (r *GroupRepository) ClearMessages(ctx context.Context, groupID, creatorID string) (int64, error) {
	if err := r.requireOwnership(ctx, groupID, creatorID); err != nil {
		return 0, err
	}

	deleted, err := r.db.Exec(ctx, `DELETE FROM group_messages WHERE group_chat_id = $1`, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear group messages: %w", err)
	}
	return deleted, nil
}

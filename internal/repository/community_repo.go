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

// ErrIdeaNotFound is returned when a community idea is not found
var ErrIdeaNotFound = errors.New("community idea not found")

// Vote directions accepted by VoteTx.
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// CommunityRepository handles community idea database operations
type CommunityRepository struct {
	db *database.DB
}

// NewCommunityRepository creates a new community repository
func NewCommunityRepository(db *database.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// List returns community ideas ranked by net votes, newest first on ties.
func (r *CommunityRepository) List(ctx context.Context, limit, offset int) ([]models.CommunityIdea, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, title, description, upvotes, downvotes, created_at
		FROM community_ideas
		ORDER BY (upvotes - downvotes) DESC, created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query community ideas: %w", err)
	}
	defer rows.Close()

	var ideas []models.CommunityIdea
	for rows.Next() {
		var idea models.CommunityIdea
		if err := rows.Scan(&idea.ID, &idea.UserID, &idea.Title, &idea.Description,
			&idea.Upvotes, &idea.Downvotes, &idea.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan community idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// GetByID retrieves a community idea by ID
func (r *CommunityRepository) GetByID(ctx context.Context, id string) (*models.CommunityIdea, error) {
	query := `
		SELECT id, user_id, title, description, upvotes, downvotes, created_at
		FROM community_ideas
		WHERE id = $1
	`
	var idea models.CommunityIdea
	err := r.db.QueryRow(ctx, query, id).Scan(&idea.ID, &idea.UserID, &idea.Title,
		&idea.Description, &idea.Upvotes, &idea.Downvotes, &idea.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdeaNotFound
		}
		return nil, fmt.Errorf("failed to get community idea: %w", err)
	}
	return &idea, nil
}

// CreateTx inserts an idea inside a caller-owned transaction, so the
// submission debit commits with it.
func (r *CommunityRepository) CreateTx(ctx context.Context, tx pgx.Tx, idea *models.CommunityIdea) error {
	if idea.ID == "" {
		idea.ID = uuid.New().String()
	}
	query := `
		INSERT INTO community_ideas (id, user_id, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query, idea.ID, idea.UserID, idea.Title, idea.Description).Scan(&idea.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create community idea: %w", err)
	}
	return nil
}

// VoteTx applies one vote inside a caller-owned transaction and returns the
// updated tallies.
func (r *CommunityRepository) VoteTx(ctx context.Context, tx pgx.Tx, ideaID, direction string) (*models.CommunityIdea, error) {
	var column string
	switch direction {
	case VoteUp:
		column = "upvotes"
	case VoteDown:
		column = "downvotes"
	default:
		return nil, fmt.Errorf("invalid vote direction: %s", direction)
	}

	query := fmt.Sprintf(`
		UPDATE community_ideas
		SET %s = %s + 1
		WHERE id = $1
		RETURNING id, user_id, title, description, upvotes, downvotes, created_at`, column, column)

	var idea models.CommunityIdea
	err := tx.QueryRow(ctx, query, ideaID).Scan(&idea.ID, &idea.UserID, &idea.Title,
		&idea.Description, &idea.Upvotes, &idea.Downvotes, &idea.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdeaNotFound
		}
		return nil, fmt.Errorf("failed to vote on community idea: %w", err)
	}
	return &idea, nil
}

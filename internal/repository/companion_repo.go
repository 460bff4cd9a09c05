package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/models"
)

var (
	// ErrCompanionNotFound is returned when a companion is not found
	ErrCompanionNotFound = errors.New("companion not found")
	// ErrCategoryNotFound is returned when a category is not found
	ErrCategoryNotFound = errors.New("category not found")
)

// CompanionRepository handles companion and category database operations
type CompanionRepository struct {
	db *database.DB
}

// NewCompanionRepository creates a new companion repository
func NewCompanionRepository(db *database.DB) *CompanionRepository {
	return &CompanionRepository{db: db}
}

const companionColumns = `id, user_id, user_name, COALESCE(category_id::text, ''), src, name, description,
		instructions, seed, message_delay, send_multiple_messages, xp_earned, created_at, updated_at`

func scanCompanion(row pgx.Row) (*models.Companion, error) {
	var c models.Companion
	err := row.Scan(&c.ID, &c.UserID, &c.UserName, &c.CategoryID, &c.Src, &c.Name,
		&c.Description, &c.Instructions, &c.Seed, &c.MessageDelay,
		&c.SendMultipleMessages, &c.XPEarned, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create creates a new companion
func (r *CompanionRepository) Create(ctx context.Context, c *models.Companion) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	var categoryID any
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	query := `
		INSERT INTO companions (id, user_id, user_name, category_id, src, name, description, instructions, seed, message_delay, send_multiple_messages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID, c.UserID, c.UserName, categoryID, c.Src, c.Name, c.Description,
		c.Instructions, c.Seed, c.MessageDelay, c.SendMultipleMessages).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create companion: %w", err)
	}
	return nil
}

// CreateTx is Create inside a caller-owned transaction.
func (r *CompanionRepository) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Companion) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	var categoryID any
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	query := `
		INSERT INTO companions (id, user_id, user_name, category_id, src, name, description, instructions, seed, message_delay, send_multiple_messages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		c.ID, c.UserID, c.UserName, categoryID, c.Src, c.Name, c.Description,
		c.Instructions, c.Seed, c.MessageDelay, c.SendMultipleMessages).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create companion: %w", err)
	}
	return nil
}

// GetByID retrieves a companion by ID
func (r *CompanionRepository) GetByID(ctx context.Context, id string) (*models.Companion, error) {
	query := `
		SELECT ` + companionColumns + `
		FROM companions
		WHERE id = $1
	`
	c, err := scanCompanion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanionNotFound
		}
		return nil, fmt.Errorf("failed to get companion: %w", err)
	}
	return c, nil
}

// CompanionListOptions defines options for listing companions
type CompanionListOptions struct {
	CategoryID string
	Name       string
	UserID     string
	Limit      int
	Offset     int
}

// List returns companions matching the options, newest first.
func (r *CompanionRepository) List(ctx context.Context, opts CompanionListOptions) ([]models.Companion, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if opts.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argNum))
		args = append(args, opts.CategoryID)
		argNum++
	}

	if opts.Name != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", argNum))
		args = append(args, opts.Name)
		argNum++
	}

	if opts.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, opts.UserID)
		argNum++
	}

	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	whereClause := strings.Join(conditions, " AND ")
	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT `+companionColumns+`
		FROM companions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query companions: %w", err)
	}
	defer rows.Close()

	return scanCompanions(rows)
}

func scanCompanions(rows pgx.Rows) ([]models.Companion, error) {
	var companions []models.Companion
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan companion: %w", err)
		}
		companions = append(companions, *c)
	}
	return companions, rows.Err()
}

// Update updates a companion's editable fields. Only the owner row matches.
func (r *CompanionRepository) Update(ctx context.Context, c *models.Companion) error {
	var categoryID any
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	query := `
		UPDATE companions
		SET category_id = $3, src = $4, name = $5, description = $6,
		    instructions = $7, seed = $8, message_delay = $9,
		    send_multiple_messages = $10, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`
	rowsAffected, err := r.db.Exec(ctx, query,
		c.ID, c.UserID, categoryID, c.Src, c.Name, c.Description,
		c.Instructions, c.Seed, c.MessageDelay, c.SendMultipleMessages)
	if err != nil {
		return fmt.Errorf("failed to update companion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCompanionNotFound
	}
	return nil
}

// Delete deletes a companion owned by userID. Messages and group memberships
// cascade.
func (r *CompanionRepository) Delete(ctx context.Context, id, userID string) error {
	rowsAffected, err := r.db.Exec(ctx, `DELETE FROM companions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete companion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCompanionNotFound
	}
	return nil
}

// UpdatePacing sets a companion's reply pacing fields regardless of owner.
// Admin only.
func (r *CompanionRepository) UpdatePacing(ctx context.Context, id string, messageDelay int, sendMultiple bool) (*models.Companion, error) {
	query := `
		UPDATE companions
		SET message_delay = $2, send_multiple_messages = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + companionColumns
	c, err := scanCompanion(r.db.QueryRow(ctx, query, id, messageDelay, sendMultiple))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanionNotFound
		}
		return nil, fmt.Errorf("failed to update companion pacing: %w", err)
	}
	return c, nil
}

// DeleteAny deletes a companion regardless of owner. Admin only.
func (r *CompanionRepository) DeleteAny(ctx context.Context, id string) error {
	rowsAffected, err := r.db.Exec(ctx, `DELETE FROM companions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete companion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCompanionNotFound
	}
	return nil
}

// AddXPTx increments a companion's earned XP inside a caller-owned
// transaction.
func (r *CompanionRepository) AddXPTx(ctx context.Context, tx pgx.Tx, companionID string, xp int) error {
	query := `
		UPDATE companions
		SET xp_earned = xp_earned + $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, companionID, xp); err != nil {
		return fmt.Errorf("failed to add companion xp: %w", err)
	}
	return nil
}

// Count returns the total number of companions.
func (r *CompanionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM companions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count companions: %w", err)
	}
	return count, nil
}

// ListCategories returns all categories ordered by name.
func (r *CompanionRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// CreateCategory creates a new category
func (r *CompanionRepository) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	cat := &models.Category{ID: uuid.New().String(), Name: name}
	_, err := r.db.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)`, cat.ID, cat.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

// SeedCategories inserts the given category names, skipping ones that exist.
func (r *CompanionRepository) SeedCategories(ctx context.Context, names []string) error {
	for _, name := range names {
		_, err := r.db.Exec(ctx, `
			INSERT INTO categories (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING`, uuid.New().String(), name)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", name, err)
		}
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
)

// DailyCountRepository stores the per-user per-day message tallies behind the
// rate limiter. The increment is one conditional upsert, so two concurrent
// requests at the last slot cannot both be admitted.
type DailyCountRepository struct {
	db *database.DB
}

// NewDailyCountRepository creates a new daily count repository
func NewDailyCountRepository(db *database.DB) *DailyCountRepository {
	return &DailyCountRepository{db: db}
}

// IncrementIfBelow creates today's row at 1 or increments it, but only while
// the stored count is below limit. ok is false when the quota is exhausted.
func (r *DailyCountRepository) IncrementIfBelow(ctx context.Context, userID string, day time.Time, limit int) (int, bool, error) {
	query := `
		INSERT INTO daily_message_counts (user_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, day)
		DO UPDATE SET count = daily_message_counts.count + 1
		WHERE daily_message_counts.count < $3
		RETURNING count
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, day, limit).Scan(&count)
	if err != nil {
		// No row returned means the conditional update did not fire: the
		// counter already sits at the limit.
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to increment daily count: %w", err)
	}
	return count, true, nil
}

// Count returns the current count for (user, day); zero when no row exists.
func (r *DailyCountRepository) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	query := `
		SELECT count
		FROM daily_message_counts
		WHERE user_id = $1 AND day = $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, day).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get daily count: %w", err)
	}
	return count, nil
}

// DeleteBefore removes the user's counter rows older than day.
func (r *DailyCountRepository) DeleteBefore(ctx context.Context, userID string, day time.Time) error {
	query := `
		DELETE FROM daily_message_counts
		WHERE user_id = $1 AND day < $2
	`
	if _, err := r.db.Exec(ctx, query, userID, day); err != nil {
		return fmt.Errorf("failed to delete stale daily counts: %w", err)
	}
	return nil
}

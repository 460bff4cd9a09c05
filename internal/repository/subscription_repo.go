package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/models"
)

// ErrSubscriptionNotFound is returned when a user has no subscription row.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository stores payment-provider subscription state. It
// satisfies the rate limiter's tier lookup: a missing row is the free tier.
type SubscriptionRepository struct {
	db *database.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = "user_id, price_cents, stripe_customer_id, stripe_subscription_id, stripe_price_id, current_period_end, created_at, updated_at"

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(&sub.UserID, &sub.PriceCents, &sub.StripeCustomerID,
		&sub.StripeSubscriptionID, &sub.StripePriceID, &sub.CurrentPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Get retrieves a user's subscription.
func (r *SubscriptionRepository) Get(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetByStripeSubscriptionID resolves the owner of a provider subscription.
// Webhook events identify subscriptions by provider ID, not by user.
func (r *SubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_subscription_id = $1
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription by provider id: %w", err)
	}
	return sub, nil
}

// Upsert writes the user's subscription state, replacing any previous row.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, price_cents, stripe_customer_id, stripe_subscription_id, stripe_price_id, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			price_cents = EXCLUDED.price_cents,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = now()
	`
	_, err := r.db.Exec(ctx, query,
		sub.UserID, sub.PriceCents, sub.StripeCustomerID,
		sub.StripeSubscriptionID, sub.StripePriceID, sub.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// Downgrade resets a user to the free tier while keeping the customer
// reference for future checkouts.
func (r *SubscriptionRepository) Downgrade(ctx context.Context, userID string) error {
	query := `
		UPDATE subscriptions
		SET price_cents = $2,
		    stripe_subscription_id = '',
		    stripe_price_id = '',
		    current_period_end = NULL,
		    updated_at = now()
		WHERE user_id = $1
	`
	if _, err := r.db.Exec(ctx, query, userID, models.PriceFree); err != nil {
		return fmt.Errorf("failed to downgrade subscription: %w", err)
	}
	return nil
}

// SubscriptionPrice returns the user's subscription price in cents. No row
// means the free tier.
func (r *SubscriptionRepository) SubscriptionPrice(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT price_cents
		FROM subscriptions
		WHERE user_id = $1
	`
	var price int
	err := r.db.QueryRow(ctx, query, userID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PriceFree, nil
		}
		return 0, fmt.Errorf("failed to get subscription price: %w", err)
	}
	return price, nil
}

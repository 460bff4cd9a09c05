// Package ratelimit enforces the per-user daily message quota keyed by
// subscription tier.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/models"
)

// Unlimited marks a tier with no daily quota.
const Unlimited = -1

// Daily message limits per subscription price.
const (
	LimitFree    = 15
	LimitStarter = 50
	LimitPro     = 100
)

// Result is the outcome of one quota check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"` // Unlimited for the ultimate tier
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	ResetAt   time.Time `json:"reset_at"`
}

// CounterStore is the durable (user, day) counter. IncrementIfBelow must be
// atomic: two concurrent calls at count == limit-1 must not both succeed.
type CounterStore interface {
	// IncrementIfBelow creates today's row at 1 or increments it, but only
	// while the stored count is below limit. ok is false when the quota is
	// already exhausted; count is the post-increment value when ok.
	IncrementIfBelow(ctx context.Context, userID string, day time.Time, limit int) (count int, ok bool, err error)
	// Count returns the current count for (user, day); zero when no row.
	Count(ctx context.Context, userID string, day time.Time) (int, error)
	// DeleteBefore removes the user's counter rows older than day.
	DeleteBefore(ctx context.Context, userID string, day time.Time) error
}

// SubscriptionSource resolves a user's subscription price. A missing record
// means the free tier.
type SubscriptionSource interface {
	SubscriptionPrice(ctx context.Context, userID string) (int, error)
}

// DailyLimiter checks and counts messages against the day's quota.
type DailyLimiter struct {
	counters CounterStore
	subs     SubscriptionSource
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDailyLimiter creates a limiter using the wall clock.
func NewDailyLimiter(counters CounterStore, subs SubscriptionSource, logger zerolog.Logger) *DailyLimiter {
	return &DailyLimiter{
		counters: counters,
		subs:     subs,
		now:      time.Now,
		logger:   logger.With().Str("service", "ratelimit").Logger(),
	}
}

// NewDailyLimiterAt is NewDailyLimiter with an injected clock for tests.
func NewDailyLimiterAt(counters CounterStore, subs SubscriptionSource, logger zerolog.Logger, now func() time.Time) *DailyLimiter {
	l := NewDailyLimiter(counters, subs, logger)
	l.now = now
	return l
}

// LimitForPrice maps a subscription price to its daily message limit.
func LimitForPrice(priceCents int) int {
	switch priceCents {
	case models.PriceStarter:
		return LimitStarter
	case models.PricePro:
		return LimitPro
	case models.PriceUltimate:
		return Unlimited
	default:
		return LimitFree
	}
}

// Midnight normalizes t to the start of its calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CheckAndIncrement consumes one message from today's quota. Steps 3-5 of the
// check run through a single conditional increment in the store, so two
// concurrent requests at the boundary serialize there.
func (l *DailyLimiter) CheckAndIncrement(ctx context.Context, userID string) (*Result, error) {
	price, err := l.subs.SubscriptionPrice(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := LimitForPrice(price)
	today := Midnight(l.now())
	resetAt := today.Add(24 * time.Hour)

	if limit == Unlimited {
		return &Result{Allowed: true, Limit: Unlimited, Remaining: Unlimited, ResetAt: resetAt}, nil
	}

	// Best-effort cleanup of stale rows; not required for correctness of
	// the current check.
	if err := l.counters.DeleteBefore(ctx, userID, today); err != nil {
		l.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to clean up stale daily counters")
	}

	count, ok, err := l.counters.IncrementIfBelow(ctx, userID, today, limit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Allowed: false, Limit: limit, Remaining: 0, Used: limit, ResetAt: resetAt}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		Used:      count,
		ResetAt:   resetAt,
	}, nil
}

// Status reports the day's quota without consuming from it.
func (l *DailyLimiter) Status(ctx context.Context, userID string) (*Result, error) {
	price, err := l.subs.SubscriptionPrice(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := LimitForPrice(price)
	today := Midnight(l.now())
	resetAt := today.Add(24 * time.Hour)

	if limit == Unlimited {
		return &Result{Allowed: true, Limit: Unlimited, Remaining: Unlimited, ResetAt: resetAt}, nil
	}

	used, err := l.counters.Count(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   remaining > 0,
		Limit:     limit,
		Remaining: remaining,
		Used:      used,
		ResetAt:   resetAt,
	}, nil
}

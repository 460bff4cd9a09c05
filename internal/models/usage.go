package models

import (
	"time"
)

// UsageAccount tracks a user's spendable XP balance and lifetime counter.
// AvailableCredits never goes negative; every debit of N is paired with a
// TotalSpent increment of N in the same atomic operation. TotalSpent is a
// single lifetime throughput counter: purchases increment it too, because
// leveling is defined against it (see DESIGN.md).
type UsageAccount struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Email            string    `json:"email" db:"email"`
	AvailableCredits int       `json:"available_credits" db:"available_credits"`
	TotalSpent       int       `json:"total_spent" db:"total_spent"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Subscription is a user's payment-provider subscription state. Absence of a
// row means the free tier. PriceCents keys the daily message quota.
type Subscription struct {
	UserID               string     `json:"user_id" db:"user_id"`
	PriceCents           int        `json:"price_cents" db:"price_cents"`
	StripeCustomerID     string     `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string     `json:"-" db:"stripe_subscription_id"`
	StripePriceID        string     `json:"-" db:"stripe_price_id"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// DailyMessageCount is one user's message tally for one calendar day.
// At most one row per (user, day); rows before today are garbage.
type DailyMessageCount struct {
	UserID string    `json:"user_id" db:"user_id"`
	Day    time.Time `json:"day" db:"day"`
	Count  int       `json:"count" db:"count"`
}

// Subscription tiers, represented by their monthly price in cents.
const (
	PriceFree     = 0
	PriceStarter  = 999
	PricePro      = 2999
	PriceUltimate = 4999
)

// Tier names for the API surface.
const (
	TierFree     = "free"
	TierStarter  = "starter"
	TierPro      = "pro"
	TierUltimate = "ultimate"
)

// TierName maps a subscription price to its tier name. Unknown prices are
// treated as free: an unrecognized price must never grant a higher quota.
func TierName(priceCents int) string {
	switch priceCents {
	case PriceStarter:
		return TierStarter
	case PricePro:
		return TierPro
	case PriceUltimate:
		return TierUltimate
	default:
		return TierFree
	}
}

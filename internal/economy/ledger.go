// Package economy holds the XP credit ledger semantics and the leveling
// function. The durable ledger lives in Postgres; the arithmetic here is the
// contract every store implementation must satisfy.
package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/companionchat/backend/internal/models"
)

var (
	// ErrInsufficientCredits is returned when a debit exceeds the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAccountNotFound is returned when no usage account exists for a user.
	ErrAccountNotFound = errors.New("usage account not found")
)

// Ledger is the spendable-balance store. Debit and Credit are atomic: no
// observer ever sees AvailableCredits updated without TotalSpent.
type Ledger interface {
	// Account returns the user's usage account.
	Account(ctx context.Context, userID string) (*models.UsageAccount, error)
	// Debit removes amount from the balance and adds it to the lifetime
	// counter. Fails with ErrInsufficientCredits without mutating anything
	// when the balance is short.
	Debit(ctx context.Context, userID string, amount int) (*models.UsageAccount, error)
	// Credit adds amount to both the balance and the lifetime counter.
	Credit(ctx context.Context, userID string, amount int) (*models.UsageAccount, error)
}

// ApplyDebit performs a debit on an in-memory account. Mirrors the
// conditional UPDATE the Postgres ledger runs; kept in one place so test
// doubles and the store agree on semantics.
func ApplyDebit(acc *models.UsageAccount, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if acc.AvailableCredits < amount {
		return ErrInsufficientCredits
	}
	acc.AvailableCredits -= amount
	acc.TotalSpent += amount
	return nil
}

// ApplyCredit performs a credit on an in-memory account.
func ApplyCredit(acc *models.UsageAccount, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	acc.AvailableCredits += amount
	acc.TotalSpent += amount
	return nil
}

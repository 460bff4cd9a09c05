// Package repository implements PostgreSQL persistence for all domain types.
// Methods that pair a ledger mutation with other writes take a pgx.Tx so the
// caller controls the transaction boundary.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
)

// UsageRepository is the durable XP credit ledger. It satisfies
// economy.Ledger; both Debit and Credit are single conditional statements, so
// the balance and the lifetime counter always move together.
type UsageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const accountColumns = "user_id, email, available_credits, total_spent, created_at, updated_at"

func scanAccount(row pgx.Row) (*models.UsageAccount, error) {
	var acc models.UsageAccount
	err := row.Scan(&acc.UserID, &acc.Email, &acc.AvailableCredits, &acc.TotalSpent, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Account returns the user's usage account.
func (r *UsageRepository) Account(ctx context.Context, userID string) (*models.UsageAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM usage_accounts
		WHERE user_id = $1
	`
	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, economy.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get usage account: %w", err)
	}
	return acc, nil
}

// ListAccounts returns usage accounts ordered by lifetime spend, highest
// first. Admin only.
func (r *UsageRepository) ListAccounts(ctx context.Context, limit, offset int) ([]models.UsageAccount, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + accountColumns + `
		FROM usage_accounts
		ORDER BY total_spent DESC, created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.UsageAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// EnsureAccount creates the user's account with the starting credit grant if
// it does not exist yet. Safe to call on every authenticated request.
func (r *UsageRepository) EnsureAccount(ctx context.Context, userID, email string) (*models.UsageAccount, error) {
	query := `
		INSERT INTO usage_accounts (user_id, email, available_credits, total_spent)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
		RETURNING ` + accountColumns
	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID, email, economy.StartingGrant))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure usage account: %w", err)
	}
	return acc, nil
}

// Debit removes amount from the balance and adds it to the lifetime counter.
// Returns economy.ErrInsufficientCredits without mutating anything when the
// balance is short.
func (r *UsageRepository) Debit(ctx context.Context, userID string, amount int) (*models.UsageAccount, error) {
	return r.debit(ctx, r.db.Pool, userID, amount)
}

// DebitTx is Debit inside a caller-owned transaction.
func (r *UsageRepository) DebitTx(ctx context.Context, tx pgx.Tx, userID string, amount int) (*models.UsageAccount, error) {
	return r.debit(ctx, tx, userID, amount)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *UsageRepository) debit(ctx context.Context, q querier, userID string, amount int) (*models.UsageAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	query := `
		UPDATE usage_accounts
		SET available_credits = available_credits - $2,
		    total_spent = total_spent + $2,
		    updated_at = now()
		WHERE user_id = $1 AND available_credits >= $2
		RETURNING ` + accountColumns
	acc, err := scanAccount(q.QueryRow(ctx, query, userID, amount))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	// No row matched: either the account is missing or the balance is short.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM usage_accounts WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return nil, economy.ErrAccountNotFound
	}
	return nil, economy.ErrInsufficientCredits
}

// Credit adds amount to both the balance and the lifetime counter.
func (r *UsageRepository) Credit(ctx context.Context, userID string, amount int) (*models.UsageAccount, error) {
	return r.credit(ctx, r.db.Pool, userID, amount)
}

// CreditTx is Credit inside a caller-owned transaction.
func (r *UsageRepository) CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount int) (*models.UsageAccount, error) {
	return r.credit(ctx, tx, userID, amount)
}

func (r *UsageRepository) credit(ctx context.Context, q querier, userID string, amount int) (*models.UsageAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	query := `
		UPDATE usage_accounts
		SET available_credits = available_credits + $2,
		    total_spent = total_spent + $2,
		    updated_at = now()
		WHERE user_id = $1
		RETURNING ` + accountColumns
	acc, err := scanAccount(q.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, economy.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	return acc, nil
}

// RecordTransactionTx appends a purchase record. Called in the same
// transaction as the credit it documents.
func (r *UsageRepository) RecordTransactionTx(ctx context.Context, tx pgx.Tx, userID string, amount int) error {
	query := `
		INSERT INTO usage_transactions (id, user_id, amount)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, query, uuid.New().String(), userID, amount); err != nil {
		return fmt.Errorf("failed to record usage transaction: %w", err)
	}
	return nil
}

// Transactions lists the user's purchase records, newest first.
func (r *UsageRepository) Transactions(ctx context.Context, userID string, limit int) ([]models.UsageTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, amount, created_at
		FROM usage_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.UsageTransaction
	for rows.Next() {
		var t models.UsageTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// CountAccounts returns the total number of usage accounts.
func (r *UsageRepository) CountAccounts(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM usage_accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// isUniqueViolation checks if an error is a unique constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "23505")
}

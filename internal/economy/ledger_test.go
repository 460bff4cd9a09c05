package economy

import (
	"testing"

	"github.com/companionchat/backend/internal/models"
)

func TestApplyDebitInsufficient(t *testing.T) {
	acc := &models.UsageAccount{UserID: "u1", AvailableCredits: 10, TotalSpent: 40}

	err := ApplyDebit(acc, 11)
	if err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if acc.AvailableCredits != 10 || acc.TotalSpent != 40 {
		t.Fatalf("failed debit mutated account: balance=%d spent=%d", acc.AvailableCredits, acc.TotalSpent)
	}
}

func TestApplyDebitPairsBalanceAndLifetime(t *testing.T) {
	acc := &models.UsageAccount{UserID: "u1", AvailableCredits: 100, TotalSpent: 0}

	if err := ApplyDebit(acc, 25); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if acc.AvailableCredits != 75 {
		t.Errorf("expected balance 75, got %d", acc.AvailableCredits)
	}
	if acc.TotalSpent != 25 {
		t.Errorf("expected total spent 25, got %d", acc.TotalSpent)
	}
}

func TestApplyDebitExactBalance(t *testing.T) {
	acc := &models.UsageAccount{AvailableCredits: 2, TotalSpent: 0}

	if err := ApplyDebit(acc, 2); err != nil {
		t.Fatalf("debit of exact balance failed: %v", err)
	}
	if acc.AvailableCredits != 0 {
		t.Errorf("expected balance 0, got %d", acc.AvailableCredits)
	}
}

func TestApplyDebitRejectsNonPositive(t *testing.T) {
	acc := &models.UsageAccount{AvailableCredits: 50}

	for _, amount := range []int{0, -1, -50} {
		if err := ApplyDebit(acc, amount); err == nil {
			t.Errorf("expected error for debit of %d", amount)
		}
	}
	if acc.AvailableCredits != 50 || acc.TotalSpent != 0 {
		t.Fatalf("rejected debit mutated account: balance=%d spent=%d", acc.AvailableCredits, acc.TotalSpent)
	}
}

func TestApplyCreditIncrementsBoth(t *testing.T) {
	acc := &models.UsageAccount{AvailableCredits: 5, TotalSpent: 155}

	if err := ApplyCredit(acc, 500); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if acc.AvailableCredits != 505 {
		t.Errorf("expected balance 505, got %d", acc.AvailableCredits)
	}
	if acc.TotalSpent != 655 {
		t.Errorf("expected total spent 655, got %d", acc.TotalSpent)
	}
}

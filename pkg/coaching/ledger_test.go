package coaching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mycoach/server/pkg/storage/memory"
	"github.com/mycoach/server/pkg/types"
)

func TestReserve_RefusesOverCeiling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC)

	store.AppendInvocation(ctx, "user-1", &types.PromptInvocation{
		ID:               "prior",
		EstimatedCostUSD: 29.50,
		Outcome:          types.OutcomeValid,
		CreatedAt:        now.Add(-24 * time.Hour),
	})

	ledger := NewCostLedger(store, 30.0)
	ledger.now = func() time.Time { return now }

	err := ledger.Reserve(ctx, "user-1", 1.00)
	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("Expected BudgetExceededError, got %v", err)
	}
	if budgetErr.SpentUSD != 29.50 || budgetErr.CeilingUSD != 30.0 {
		t.Errorf("Expected spent 29.50 against ceiling 30.00, got %+v", budgetErr)
	}

	// A cheaper invocation still fits.
	if err := ledger.Reserve(ctx, "user-1", 0.25); err != nil {
		t.Fatalf("Expected reservation under the ceiling to succeed: %v", err)
	}
	if got := ledger.Spent("user-1"); got != 29.75 {
		t.Errorf("Expected running total 29.75, got %v", got)
	}
}

func TestAdjust_ReplacesEstimateWithActual(t *testing.T) {
	ctx := context.Background()
	ledger := NewCostLedger(memory.NewStore(), 30.0)

	if err := ledger.Reserve(ctx, "user-1", 0.50); err != nil {
		t.Fatal(err)
	}
	ledger.Adjust("user-1", 0.50, 0.125)
	if got := ledger.Spent("user-1"); got != 0.125 {
		t.Errorf("Expected spend settled to 0.125, got %v", got)
	}

	// A failed call releases the whole reservation.
	if err := ledger.Reserve(ctx, "user-1", 0.50); err != nil {
		t.Fatal(err)
	}
	ledger.Adjust("user-1", 0.50, 0)
	if got := ledger.Spent("user-1"); got != 0.125 {
		t.Errorf("Expected spend back to 0.125 after release, got %v", got)
	}
}

func TestReserve_InterleavedUsersKeepReservations(t *testing.T) {
	ctx := context.Background()
	ledger := NewCostLedger(memory.NewStore(), 30.0)

	// An in-flight reservation must survive another user's traffic even
	// though it has not been persisted to the invocation log yet.
	if err := ledger.Reserve(ctx, "user-1", 29.0); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Reserve(ctx, "user-2", 1.0); err != nil {
		t.Fatal(err)
	}
	err := ledger.Reserve(ctx, "user-1", 2.0)
	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("Expected BudgetExceededError on top of the in-flight reservation, got %v", err)
	}
	if budgetErr.SpentUSD != 29.0 {
		t.Errorf("Expected user-1 spend 29.0, got %v", budgetErr.SpentUSD)
	}
	if got := ledger.Spent("user-2"); got != 1.0 {
		t.Errorf("Expected user-2 spend 1.0, got %v", got)
	}

	// Settlement lands on the right account.
	ledger.Adjust("user-2", 1.0, 0.25)
	if got := ledger.Spent("user-2"); got != 0.25 {
		t.Errorf("Expected user-2 settled to 0.25, got %v", got)
	}
	if got := ledger.Spent("user-1"); got != 29.0 {
		t.Errorf("Expected user-1 untouched at 29.0, got %v", got)
	}
}

func TestReserve_MonthRolloverResetsSpend(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)

	ledger := NewCostLedger(store, 30.0)
	ledger.now = func() time.Time { return now }

	if err := ledger.Reserve(ctx, "user-1", 29.0); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Reserve(ctx, "user-1", 2.0); err == nil {
		t.Fatal("Expected January to be exhausted")
	}

	// February starts a fresh ledger seeded from the store, which has no
	// recorded invocations.
	now = time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)
	if err := ledger.Reserve(ctx, "user-1", 2.0); err != nil {
		t.Fatalf("Expected fresh month to admit the call: %v", err)
	}
	if got := ledger.Spent("user-1"); got != 2.0 {
		t.Errorf("Expected February spend 2.0, got %v", got)
	}
}

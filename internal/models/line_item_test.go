package models

import (
	"errors"
	"testing"
	"time"
)

func testLineItem(t *testing.T, budget float64) *LineItem {
	t.Helper()
	start := time.Date(2020, 7, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 7, 12, 0, 0, 0, 0, time.UTC)
	return NewLineItem(1, 1, "banner", budget, start, end)
}

func TestLineItemSetBudgetBeforeInit(t *testing.T) {
	li := testLineItem(t, 10000)
	if err := li.SetBudget(5000); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if li.Budget() != 10000 {
		t.Errorf("budget must be unchanged on error, got %v", li.Budget())
	}
}

func TestLineItemSetBudgetUpdatesEngine(t *testing.T) {
	li := testLineItem(t, 10000)
	if err := li.ResetPacing(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := li.SetBudget(5000); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if li.Budget() != 5000 {
		t.Errorf("expected budget 5000, got %v", li.Budget())
	}
	if got := li.PacingEngine().TotalBudget(); got != 5000 {
		t.Errorf("expected engine budget 5000, got %v", got)
	}

	if err := li.SetBudget(-1); err == nil {
		t.Fatal("expected error for negative budget")
	}
	if li.Budget() != 5000 {
		t.Errorf("budget must be unchanged when the engine rejects, got %v", li.Budget())
	}
}

func TestLineItemResetPacingSwapsEngine(t *testing.T) {
	li := testLineItem(t, 10000)
	if li.Initialized() {
		t.Fatal("expected no engine before the first reset")
	}
	if err := li.ResetPacing(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	first := li.PacingEngine()
	if first == nil {
		t.Fatal("expected an engine after reset")
	}
	if err := li.ResetPacing(); err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if li.PacingEngine() == first {
		t.Error("expected a fresh engine after the second reset")
	}
	if li.Spend() != 0 {
		t.Errorf("expected zero spend on a fresh engine, got %v", li.Spend())
	}
}

package models

import (
	"sync"
	"time"

	"github.com/patrickwarner/openpacer/internal/pacing"
)

// LineItem is the unit of delivery control. Each line item carries its share
// of the campaign budget and owns one pacing engine; every bid decision and
// win/lose notification for the line item flows through that engine.
//
// The identity fields are fixed at creation. The budget and the engine
// pointer are swapped at runtime by budget updates and pacing resets, so all
// access to them goes through the accessor methods.
type LineItem struct {
	ID         int
	CampaignID int
	Name       string
	StartDate  time.Time
	EndDate    time.Time

	mu     sync.RWMutex
	budget float64
	engine *pacing.Engine
}

// NewLineItem builds a line item without a pacing engine; pacing starts when
// the owning campaign is initialized.
func NewLineItem(id, campaignID int, name string, budget float64, start, end time.Time) *LineItem {
	return &LineItem{
		ID:         id,
		CampaignID: campaignID,
		Name:       name,
		StartDate:  start,
		EndDate:    end,
		budget:     budget,
	}
}

// Budget returns the line item's share of the campaign budget.
func (li *LineItem) Budget() float64 {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.budget
}

// PacingEngine returns the line item's engine, or nil before the owning
// campaign is initialized. The engine serializes its own state transitions,
// so the returned pointer stays safe to use after a concurrent reset swaps
// in a fresh one.
func (li *LineItem) PacingEngine() *pacing.Engine {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.engine
}

// Initialized reports whether the line item has a pacing engine.
func (li *LineItem) Initialized() bool {
	return li.PacingEngine() != nil
}

// Spend returns the line item's confirmed spend across all timezone
// partitions, or 0 before initialization.
func (li *LineItem) Spend() float64 {
	eng := li.PacingEngine()
	if eng == nil {
		return 0
	}
	return eng.TotalSpent()
}

// SetBudget replaces the line item's budget and pushes the new total into
// the engine as one step, so a concurrent reader never observes the budget
// and the engine disagreeing.
func (li *LineItem) SetBudget(budget float64) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.engine == nil {
		return ErrNotInitialized
	}
	if err := li.engine.SetTotalBudget(budget); err != nil {
		return err
	}
	li.budget = budget
	return nil
}

// ResetPacing replaces the line item's engine with a fresh one over the same
// budget and window, discarding all pacing state.
func (li *LineItem) ResetPacing() error {
	li.mu.Lock()
	defer li.mu.Unlock()
	eng, err := pacing.NewEngine(li.budget, li.StartDate, li.EndDate)
	if err != nil {
		return err
	}
	li.engine = eng
	return nil
}

func (li *LineItem) setEngine(eng *pacing.Engine) {
	li.mu.Lock()
	li.engine = eng
	li.mu.Unlock()
}

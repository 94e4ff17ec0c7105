package models

import "time"

// Campaign groups line items that share an advertiser budget. Budgets,
// pacing state, and delivery windows live on the line items; the campaign is
// the unit of creation and initialization. A campaign's total budget is split
// evenly across its line items when pacing is initialized.
type Campaign struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	TotalBudget float64   `json:"total_budget"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	// LineItemCount is the number of line items the budget is split across
	// when the campaign's pacing engines are initialized.
	LineItemCount int `json:"line_item_count"`
	// Initialized reports whether pacing engines have been created for this
	// campaign's line items.
	Initialized bool `json:"initialized"`
}

// Validate checks the fields a campaign needs before pacing can ever be
// initialized for it.
func (c *Campaign) Validate() error {
	if c.TotalBudget < 0 {
		return ErrNegativeBudget
	}
	if c.StartDate.After(c.EndDate) {
		return ErrInvalidWindow
	}
	if c.LineItemCount < 1 {
		return ErrNoLineItems
	}
	return nil
}

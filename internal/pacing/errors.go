package pacing

import "errors"

var (
	// ErrNegativeBudget is returned when a campaign or budget update carries
	// a negative total budget.
	ErrNegativeBudget = errors.New("total budget cannot be negative")
	// ErrInvalidWindow is returned when a campaign's start date falls after
	// its end date.
	ErrInvalidWindow = errors.New("start date cannot be later than end date")
	// ErrOutOfWindow is returned when an opportunity's local time falls
	// outside the campaign window. No partition state is mutated.
	ErrOutOfWindow = errors.New("opportunity outside campaign window")
	// ErrUnknownOpportunity is returned when a notification references an id
	// with no matching in-flight buy. It indicates a caller bookkeeping bug
	// and is never silently ignored.
	ErrUnknownOpportunity = errors.New("unknown opportunity id")
)

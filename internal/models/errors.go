package models

import "errors"

// ErrNotFound is returned when an entity is not found in the data store.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicate is returned when inserting an entity whose id already exists.
var ErrDuplicate = errors.New("entity already exists")

// Campaign validation errors.
var (
	ErrNegativeBudget = errors.New("budget must not be negative")
	ErrInvalidWindow  = errors.New("start date must not be after end date")
	ErrNoLineItems    = errors.New("campaign needs at least one line item")
	ErrNotInitialized = errors.New("pacing not initialized for line item")
)

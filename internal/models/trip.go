package models

import "time"

// Trip represents a group of participants whose expenses settle together.
type Trip struct {
	// ID is the unique identifier for the trip (UUID format).
	ID string

	// Name is the display name of the trip (e.g., "Lisbon 2026").
	Name string

	// BaseCurrency is the currency code the trip settles in.
	BaseCurrency string

	// Participants is the list of participant user IDs.
	Participants []string

	// CreatedAt is when the trip was created.
	CreatedAt time.Time

	// ExpensesUpdatedAt is bumped whenever an expense of the trip is
	// created, changed or removed. A settlement computed before this
	// instant is stale.
	ExpensesUpdatedAt time.Time
}

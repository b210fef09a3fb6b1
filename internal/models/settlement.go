package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PersonSummary holds one participant's totals for a trip computation.
//
// NetBase = TotalPaidBase − TotalOwedBase + SettledOutBase − SettledInBase.
// Positive means the participant is owed money.
type PersonSummary struct {
	UserID string

	// TotalPaidBase is the sum of expense amounts this participant paid.
	TotalPaidBase decimal.Decimal

	// TotalOwedBase is the sum of this participant's contributions.
	TotalOwedBase decimal.Decimal

	// SettledOutBase is the sum of settled transfers this participant paid.
	SettledOutBase decimal.Decimal

	// SettledInBase is the sum of settled transfers this participant received.
	SettledInBase decimal.Decimal

	NetBase decimal.Decimal
}

// SettlementSummary is the per-trip settlement snapshot. It is replaced
// wholesale on every recompute.
type SettlementSummary struct {
	TripID       string
	BaseCurrency string

	// PersonSummaries is keyed by user ID.
	PersonSummaries map[string]PersonSummary

	LastComputedAt time.Time

	// ExpensesVersion is the trip's ExpensesUpdatedAt as read before the
	// expenses this snapshot was built from. Any other value on the trip
	// means the snapshot is stale.
	ExpensesVersion time.Time
}

// MinimalTransfer is a directed payment: FromUserID owes ToUserID AmountBase.
//
// Unsettled transfers are regenerated with new IDs on each recompute.
// Settled transfers are history and are carried into every new snapshot.
type MinimalTransfer struct {
	// ID is the unique identifier for the transfer (UUID format).
	ID string

	TripID     string
	FromUserID string
	ToUserID   string

	// AmountBase is always positive and in the trip's base currency.
	AmountBase decimal.Decimal

	ComputedAt time.Time

	// IsSettled is set by an explicit user action outside the engine.
	IsSettled bool

	// SettledAt is set together with IsSettled.
	SettledAt *time.Time
}

// Package api defines the wire messages of the settle.v1 services.
//
// Messages are encoded as JSON. Money travels as decimal strings
// ("12.50"), never as floating point numbers.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParticipantAmount is one participant's share of an expense.
type ParticipantAmount struct {
	ParticipantID string          `json:"participant_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// PreviewSplitRequest asks how an expense would be split, without storing it.
type PreviewSplitRequest struct {
	Expense Expense `json:"expense"`
}

type PreviewSplitResponse struct {
	Contributions []ParticipantAmount `json:"contributions"`
}

type ComputeSettlementRequest struct {
	TripID string `json:"trip_id"`
}

type ComputeSettlementResponse struct {
	Settlement Settlement `json:"settlement"`
}

type GetSettlementRequest struct {
	TripID string `json:"trip_id"`
}

type GetSettlementResponse struct {
	Settlement Settlement `json:"settlement"`
	// Recomputed is true when the stored snapshot was stale and rebuilt.
	Recomputed bool `json:"recomputed"`
}

type MarkTransferSettledRequest struct {
	TripID     string `json:"trip_id"`
	TransferID string `json:"transfer_id"`
}

type MarkTransferSettledResponse struct{}

// Settlement is a trip's settlement snapshot.
type Settlement struct {
	TripID         string          `json:"trip_id"`
	BaseCurrency   string          `json:"base_currency"`
	LastComputedAt time.Time       `json:"last_computed_at"`
	People         []PersonSummary `json:"people"`
	Transfers      []Transfer      `json:"transfers"`
	// Failures are expenses left out because they could not be split.
	Failures []SplitFailure `json:"failures,omitempty"`
	// SkippedExpenseIDs are expenses not in the trip's base currency.
	SkippedExpenseIDs []string `json:"skipped_expense_ids,omitempty"`
}

// PersonSummary holds one participant's totals. Net is positive when the
// participant is owed money.
type PersonSummary struct {
	UserID     string          `json:"user_id"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	TotalOwed  decimal.Decimal `json:"total_owed"`
	SettledOut decimal.Decimal `json:"settled_out"`
	SettledIn  decimal.Decimal `json:"settled_in"`
	Net        decimal.Decimal `json:"net"`
}

// Transfer is a directed payment from FromUserID to ToUserID.
type Transfer struct {
	ID         string          `json:"id"`
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	ComputedAt time.Time       `json:"computed_at"`
	IsSettled  bool            `json:"is_settled"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
}

// SplitFailure reports an expense whose allocation data is malformed.
type SplitFailure struct {
	ExpenseID string `json:"expense_id"`
	Reason    string `json:"reason"`
}

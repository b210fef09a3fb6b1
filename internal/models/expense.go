package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitKind selects how an expense total is divided among participants.
type SplitKind string

const (
	// SplitEqual divides the total evenly; leftover minor units go to the
	// first participants in list order.
	SplitEqual SplitKind = "equal"

	// SplitWeighted divides the total proportionally to Expense.Weights.
	SplitWeighted SplitKind = "weighted"

	// SplitItemized divides each line item among its assignees and spreads
	// tax and service charge proportionally to item subtotals.
	SplitItemized SplitKind = "itemized"
)

// Expense represents a payment made by one participant on behalf of several.
// The settlement engine treats expenses as immutable input.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// TripID is the trip this expense belongs to.
	TripID string

	// Description is a human-readable label (e.g., "Dinner at Ramiro").
	Description string

	// PayerUserID is the participant who paid the full amount.
	PayerUserID string

	// Amount is the full amount paid, in Currency.
	Amount decimal.Decimal

	// Currency is the ISO code of Amount.
	Currency string

	// ParticipantIDs lists who shares the expense, in allocation order.
	ParticipantIDs []string

	// SplitKind selects the allocation rule.
	SplitKind SplitKind

	// Weights maps participant ID to a positive weight. Only for SplitWeighted.
	Weights map[string]decimal.Decimal

	// LineItems are the itemized lines. Only for SplitItemized.
	LineItems []LineItem

	// Extras are charges on top of the line items. Only for SplitItemized.
	Extras Extras

	// CreatedAt is when the expense was recorded.
	CreatedAt time.Time

	// UpdatedAt is when the expense was last changed.
	UpdatedAt time.Time
}

// LineItem represents a single line on an itemized expense.
type LineItem struct {
	ID   string
	Name string

	// Quantity must be positive; fractional quantities are allowed.
	Quantity decimal.Decimal

	// UnitPrice must not be negative.
	UnitPrice decimal.Decimal

	// Taxable items form the base that Extras.Tax is spread over.
	Taxable bool

	// ServiceChargeable items form the base that Extras.ServiceCharge is spread over.
	ServiceChargeable bool

	// Assignments are the participants sharing this item. Shares sum to 1.
	Assignments []Assignment
}

// Total returns quantity × unit price, unrounded.
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Assignment gives one participant a relative share of a line item.
type Assignment struct {
	ParticipantID string
	Share         decimal.Decimal
}

// Extras are the charges of an itemized expense beyond its line items.
type Extras struct {
	// Tax is spread over taxable items.
	Tax decimal.Decimal

	// ServiceCharge (including any tip) is spread over service-chargeable items.
	ServiceCharge decimal.Decimal
}

// ParticipantContribution is the amount one participant owes for one expense.
// The contributions of an expense always sum to its amount exactly.
type ParticipantContribution struct {
	ParticipantID string
	Amount        decimal.Decimal
}

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip is a group of participants sharing expenses in one base currency.
type Trip struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	BaseCurrency      string    `json:"base_currency"`
	Participants      []string  `json:"participants"`
	CreatedAt         time.Time `json:"created_at"`
	ExpensesUpdatedAt time.Time `json:"expenses_updated_at"`
}

// Expense is a payment by one participant on behalf of several.
// ID and the timestamps are set by the server.
type Expense struct {
	ID             string                     `json:"id,omitempty"`
	Description    string                     `json:"description"`
	PayerID        string                     `json:"payer_id"`
	Amount         decimal.Decimal            `json:"amount"`
	Currency       string                     `json:"currency"`
	ParticipantIDs []string                   `json:"participant_ids"`
	SplitKind      string                     `json:"split_kind"`
	Weights        map[string]decimal.Decimal `json:"weights,omitempty"`
	LineItems      []LineItem                 `json:"line_items,omitempty"`
	Tax            decimal.Decimal            `json:"tax"`
	ServiceCharge  decimal.Decimal            `json:"service_charge"`
	CreatedAt      time.Time                  `json:"created_at,omitzero"`
}

// LineItem is one line of an itemized expense.
type LineItem struct {
	Name              string          `json:"name"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Taxable           bool            `json:"taxable"`
	ServiceChargeable bool            `json:"service_chargeable"`
	Assignments       []Assignment    `json:"assignments"`
}

// Assignment gives a participant a relative share of a line item.
type Assignment struct {
	ParticipantID string          `json:"participant_id"`
	Share         decimal.Decimal `json:"share"`
}

type CreateTripRequest struct {
	Name         string   `json:"name"`
	BaseCurrency string   `json:"base_currency"`
	Participants []string `json:"participants"`
}

type CreateTripResponse struct {
	Trip Trip `json:"trip"`
}

type GetTripRequest struct {
	TripID string `json:"trip_id"`
}

type GetTripResponse struct {
	Trip Trip `json:"trip"`
}

type AddExpenseRequest struct {
	TripID  string  `json:"trip_id"`
	Expense Expense `json:"expense"`
}

type AddExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	TripID    string `json:"trip_id"`
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	TripID string `json:"trip_id"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

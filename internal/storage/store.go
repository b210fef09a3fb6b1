// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/tripsettle/internal/models"
)

// ErrNotFound is returned when a referenced trip, expense or transfer does not exist.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a failed read or write against the backing store.
// The whole recompute is idempotent, so callers may retry after backoff.
// It never means "no such settlement".
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SettlementStore is the persistence collaborator of the settlement engine.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine.
type SettlementStore interface {
	// GetExpensesByTrip returns every expense of a trip, oldest first.
	GetExpensesByTrip(ctx context.Context, tripID string) ([]models.Expense, error)

	// GetTrip returns a trip, or an error wrapping ErrNotFound.
	GetTrip(ctx context.Context, tripID string) (*models.Trip, error)

	// GetSettlementSummary returns the persisted snapshot summary, or nil
	// (and no error) when the trip has never been computed.
	GetSettlementSummary(ctx context.Context, tripID string) (*models.SettlementSummary, error)

	// GetSettlement returns the persisted summary and transfer set as one
	// consistent read. The summary is nil when the trip has never been computed.
	GetSettlement(ctx context.Context, tripID string) (*models.SettlementSummary, []models.MinimalTransfer, error)

	// GetTransfers returns the persisted transfer set of a trip.
	GetTransfers(ctx context.Context, tripID string) ([]models.MinimalTransfer, error)

	// ReplaceSettlement atomically swaps the trip's summary and whole transfer
	// set. Readers see either the old snapshot or the new one.
	ReplaceSettlement(ctx context.Context, tripID string, summary models.SettlementSummary, transfers []models.MinimalTransfer) error

	// MarkTransferSettled flags one transfer as paid at the given time.
	// Unknown transfers yield an error wrapping ErrNotFound.
	MarkTransferSettled(ctx context.Context, tripID, transferID string, at time.Time) error
}

// Store adds the trip and expense operations used to drive the engine.
type Store interface {
	SettlementStore

	// CreateTrip persists a new trip. The trip.ID field is populated by the store.
	CreateTrip(ctx context.Context, trip *models.Trip) error

	// CreateExpense persists a new expense and marks the trip's expenses as changed.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense and marks the trip's expenses as changed.
	DeleteExpense(ctx context.Context, tripID, expenseID string) error

	// Close releases any resources held by the store.
	Close() error
}

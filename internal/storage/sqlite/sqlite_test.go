package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTrip(t *testing.T, store *SQLiteStore) *models.Trip {
	t.Helper()
	trip := &models.Trip{Name: "Lisbon", BaseCurrency: "EUR", Participants: []string{"ana", "bo", "cy"}}
	require.NoError(t, store.CreateTrip(context.Background(), trip))
	return trip
}

func TestSQLiteStore_Trips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateTrip generates ID and timestamps", func(t *testing.T) {
		trip := createTrip(t, store)
		assert.NotEmpty(t, trip.ID)
		assert.False(t, trip.CreatedAt.IsZero())
		assert.Equal(t, trip.CreatedAt, trip.ExpensesUpdatedAt)
	})

	t.Run("GetTrip keeps participant order", func(t *testing.T) {
		original := &models.Trip{Name: "Oslo", BaseCurrency: "NOK", Participants: []string{"zed", "amy", "mo"}}
		require.NoError(t, store.CreateTrip(ctx, original))

		got, err := store.GetTrip(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, original.Name, got.Name)
		assert.Equal(t, original.BaseCurrency, got.BaseCurrency)
		assert.Equal(t, []string{"zed", "amy", "mo"}, got.Participants)
		assert.True(t, original.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("GetTrip returns ErrNotFound for nonexistent trip", func(t *testing.T) {
		_, err := store.GetTrip(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSQLiteStore_Expenses(t *testing.T) {
	store := newTestStore(t)
	store.now = fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	trip := createTrip(t, store)

	t.Run("round trips every split kind", func(t *testing.T) {
		expenses := []*models.Expense{
			{
				TripID: trip.ID, Description: "Taxi", PayerUserID: "ana", Amount: d("25.00"), Currency: "EUR",
				ParticipantIDs: []string{"cy", "ana", "bo"}, SplitKind: models.SplitEqual,
			},
			{
				TripID: trip.ID, Description: "Hotel", PayerUserID: "bo", Amount: d("300.00"), Currency: "EUR",
				ParticipantIDs: []string{"ana", "bo"}, SplitKind: models.SplitWeighted,
				Weights: map[string]decimal.Decimal{"ana": d("2"), "bo": d("1.5")},
			},
			{
				TripID: trip.ID, Description: "Dinner", PayerUserID: "cy", Amount: d("57.20"), Currency: "EUR",
				ParticipantIDs: []string{"ana", "cy"}, SplitKind: models.SplitItemized,
				LineItems: []models.LineItem{
					{Name: "Bacalhau", Quantity: d("1"), UnitPrice: d("22.00"), Taxable: true, ServiceChargeable: true,
						Assignments: []models.Assignment{{ParticipantID: "ana", Share: d("1")}}},
					{Name: "Wine", Quantity: d("2"), UnitPrice: d("14.00"), Taxable: true,
						Assignments: []models.Assignment{
							{ParticipantID: "ana", Share: d("0.5")},
							{ParticipantID: "cy", Share: d("0.5")},
						}},
				},
				Extras: models.Extras{Tax: d("5.00"), ServiceCharge: d("2.20")},
			},
		}
		for _, e := range expenses {
			require.NoError(t, store.CreateExpense(ctx, e))
			assert.NotEmpty(t, e.ID)
		}

		got, err := store.GetExpensesByTrip(ctx, trip.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Equal(t, "Taxi", got[0].Description)
		assert.Equal(t, []string{"cy", "ana", "bo"}, got[0].ParticipantIDs)
		assert.Nil(t, got[0].Weights)

		assert.Equal(t, models.SplitWeighted, got[1].SplitKind)
		assert.True(t, got[1].Weights["bo"].Equal(d("1.5")))

		dinner := got[2]
		assert.True(t, dinner.Amount.Equal(d("57.20")))
		assert.True(t, dinner.Extras.Tax.Equal(d("5.00")))
		assert.True(t, dinner.Extras.ServiceCharge.Equal(d("2.20")))
		require.Len(t, dinner.LineItems, 2)
		assert.Equal(t, "Bacalhau", dinner.LineItems[0].Name)
		assert.True(t, dinner.LineItems[0].ServiceChargeable)
		assert.False(t, dinner.LineItems[1].ServiceChargeable)
		assert.True(t, dinner.LineItems[1].Total().Equal(d("28.00")))
		require.Len(t, dinner.LineItems[1].Assignments, 2)
		assert.Equal(t, "cy", dinner.LineItems[1].Assignments[1].ParticipantID)
	})

	t.Run("expense writes bump the trip change marker", func(t *testing.T) {
		before, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)

		e := &models.Expense{TripID: trip.ID, PayerUserID: "ana", Amount: d("4.00"), Currency: "EUR",
			ParticipantIDs: []string{"ana", "bo"}, SplitKind: models.SplitEqual}
		require.NoError(t, store.CreateExpense(ctx, e))
		afterCreate, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, afterCreate.ExpensesUpdatedAt.After(before.ExpensesUpdatedAt))

		require.NoError(t, store.DeleteExpense(ctx, trip.ID, e.ID))
		afterDelete, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, afterDelete.ExpensesUpdatedAt.After(afterCreate.ExpensesUpdatedAt))
	})

	t.Run("change marker advances under a stalled clock", func(t *testing.T) {
		frozen := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return frozen }
		defer func() { store.now = fixedClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) }()

		before, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		e := &models.Expense{TripID: trip.ID, PayerUserID: "bo", Amount: d("2.00"), Currency: "EUR",
			ParticipantIDs: []string{"bo"}, SplitKind: models.SplitEqual}
		require.NoError(t, store.CreateExpense(ctx, e))
		afterCreate, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, afterCreate.ExpensesUpdatedAt.After(before.ExpensesUpdatedAt))

		require.NoError(t, store.DeleteExpense(ctx, trip.ID, e.ID))
		afterDelete, err := store.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, afterDelete.ExpensesUpdatedAt.After(afterCreate.ExpensesUpdatedAt))
	})

	t.Run("DeleteExpense returns ErrNotFound for nonexistent expense", func(t *testing.T) {
		err := store.DeleteExpense(ctx, trip.ID, "nonexistent-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CreateExpense rejects unknown trip", func(t *testing.T) {
		err := store.CreateExpense(ctx, &models.Expense{TripID: "nope", Amount: d("1"), Currency: "EUR"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetExpensesByTrip returns ErrNotFound for nonexistent trip", func(t *testing.T) {
		_, err := store.GetExpensesByTrip(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func snapshot(tripID string, at time.Time) (models.SettlementSummary, []models.MinimalTransfer) {
	summary := models.SettlementSummary{
		TripID:         tripID,
		BaseCurrency:    "EUR",
		LastComputedAt:  at,
		ExpensesVersion: at.Add(-time.Second),
		PersonSummaries: map[string]models.PersonSummary{
			"ana": {UserID: "ana", TotalPaidBase: d("60.00"), TotalOwedBase: d("20.00"),
				SettledOutBase: decimal.Zero, SettledInBase: decimal.Zero, NetBase: d("40.00")},
			"bo": {UserID: "bo", TotalPaidBase: d("0"), TotalOwedBase: d("20.00"),
				SettledOutBase: decimal.Zero, SettledInBase: decimal.Zero, NetBase: d("-20.00")},
			"cy": {UserID: "cy", TotalPaidBase: d("0"), TotalOwedBase: d("20.00"),
				SettledOutBase: decimal.Zero, SettledInBase: decimal.Zero, NetBase: d("-20.00")},
		},
	}
	transfers := []models.MinimalTransfer{
		{ID: "t-1", TripID: tripID, FromUserID: "bo", ToUserID: "ana", AmountBase: d("20.00"), ComputedAt: at},
		{ID: "t-2", TripID: tripID, FromUserID: "cy", ToUserID: "ana", AmountBase: d("20.00"), ComputedAt: at},
	}
	return summary, transfers
}

func TestSQLiteStore_Settlements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trip := createTrip(t, store)
	at := time.Date(2026, 5, 2, 18, 30, 0, 123, time.UTC)

	t.Run("GetSettlementSummary returns nil before first compute", func(t *testing.T) {
		summary, err := store.GetSettlementSummary(ctx, trip.ID)
		require.NoError(t, err)
		assert.Nil(t, summary)

		transfers, err := store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, transfers)

		summary, transfers, err = store.GetSettlement(ctx, trip.ID)
		require.NoError(t, err)
		assert.Nil(t, summary)
		assert.Nil(t, transfers)
	})

	t.Run("ReplaceSettlement round trips the snapshot", func(t *testing.T) {
		summary, transfers := snapshot(trip.ID, at)
		require.NoError(t, store.ReplaceSettlement(ctx, trip.ID, summary, transfers))

		got, err := store.GetSettlementSummary(ctx, trip.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "EUR", got.BaseCurrency)
		assert.True(t, got.LastComputedAt.Equal(at))
		assert.True(t, got.ExpensesVersion.Equal(at.Add(-time.Second)))
		require.Len(t, got.PersonSummaries, 3)
		assert.True(t, got.PersonSummaries["ana"].NetBase.Equal(d("40.00")))
		assert.True(t, got.PersonSummaries["bo"].TotalOwedBase.Equal(d("20.00")))

		gotTransfers, err := store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		require.Len(t, gotTransfers, 2)
		assert.Equal(t, "t-1", gotTransfers[0].ID)
		assert.Equal(t, "t-2", gotTransfers[1].ID)
		assert.False(t, gotTransfers[0].IsSettled)
		assert.Nil(t, gotTransfers[0].SettledAt)

		snap, snapTransfers, err := store.GetSettlement(ctx, trip.ID)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.True(t, snap.LastComputedAt.Equal(at))
		assert.Equal(t, gotTransfers, snapTransfers)
	})

	t.Run("ReplaceSettlement removes the previous transfer set", func(t *testing.T) {
		summary, _ := snapshot(trip.ID, at.Add(time.Minute))
		replacement := []models.MinimalTransfer{
			{ID: "t-3", TripID: trip.ID, FromUserID: "bo", ToUserID: "ana", AmountBase: d("40.00"), ComputedAt: at},
		}
		require.NoError(t, store.ReplaceSettlement(ctx, trip.ID, summary, replacement))

		got, err := store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t-3", got[0].ID)
	})

	t.Run("failed replace leaves the old snapshot", func(t *testing.T) {
		summary, _ := snapshot(trip.ID, at.Add(time.Hour))
		// Duplicate IDs violate the primary key on the second insert.
		broken := []models.MinimalTransfer{
			{ID: "dup", TripID: trip.ID, FromUserID: "bo", ToUserID: "ana", AmountBase: d("1"), ComputedAt: at},
			{ID: "dup", TripID: trip.ID, FromUserID: "cy", ToUserID: "ana", AmountBase: d("1"), ComputedAt: at},
		}
		err := store.ReplaceSettlement(ctx, trip.ID, summary, broken)
		var perr *storage.PersistenceError
		require.True(t, errors.As(err, &perr), "want *PersistenceError, got %v", err)

		got, err := store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t-3", got[0].ID)

		s, err := store.GetSettlementSummary(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, s.LastComputedAt.Equal(at.Add(time.Minute)))
	})

	t.Run("MarkTransferSettled", func(t *testing.T) {
		settledAt := at.Add(2 * time.Hour)
		require.NoError(t, store.MarkTransferSettled(ctx, trip.ID, "t-3", settledAt))

		got, err := store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		require.True(t, got[0].IsSettled)
		require.NotNil(t, got[0].SettledAt)
		assert.True(t, got[0].SettledAt.Equal(settledAt))

		// Marking again keeps the first settlement time.
		require.NoError(t, store.MarkTransferSettled(ctx, trip.ID, "t-3", settledAt.Add(time.Hour)))
		got, err = store.GetTransfers(ctx, trip.ID)
		require.NoError(t, err)
		assert.True(t, got[0].SettledAt.Equal(settledAt))
	})

	t.Run("MarkTransferSettled returns ErrNotFound for unknown transfer", func(t *testing.T) {
		err := store.MarkTransferSettled(ctx, trip.ID, "missing", at)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = store.MarkTransferSettled(ctx, "other-trip", "t-3", at)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSQLiteStore_GetSettlementIsConsistentUnderReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trip := createTrip(t, store)
	start := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)

	summary, transfers := snapshot(trip.ID, start)
	require.NoError(t, store.ReplaceSettlement(ctx, trip.ID, summary, transfers))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 50; i++ {
			at := start.Add(time.Duration(i) * time.Minute)
			summary, transfers := snapshot(trip.ID, at)
			for j := range transfers {
				transfers[j].ID = fmt.Sprintf("t-%d-%d", i, j)
			}
			assert.NoError(t, store.ReplaceSettlement(ctx, trip.ID, summary, transfers))
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		summary, transfers, err := store.GetSettlement(ctx, trip.ID)
		require.NoError(t, err)
		require.NotNil(t, summary)
		require.Len(t, summary.PersonSummaries, 3)
		require.Len(t, transfers, 2)
		for _, tr := range transfers {
			assert.True(t, tr.ComputedAt.Equal(summary.LastComputedAt),
				"transfer %s computed at %s, summary at %s", tr.ID, tr.ComputedAt, summary.LastComputedAt)
		}
	}
}

package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/tripsettle/pkg/api"
)

func TestTripService(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	trip := createTrip(t, c, "ana", "bo")

	t.Run("GetTrip", func(t *testing.T) {
		resp, err := c.trip.GetTrip(ctx, connect.NewRequest(&api.GetTripRequest{TripID: trip.ID}))
		require.NoError(t, err)
		assert.Equal(t, "Kyoto", resp.Msg.Trip.Name)
		assert.Equal(t, []string{"ana", "bo"}, resp.Msg.Trip.Participants)
	})

	t.Run("AddExpense defaults currency and split kind", func(t *testing.T) {
		e := addEqual(t, c, trip.ID, "ana", "12.00", "ana", "bo")
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "USD", e.Currency)
		assert.Equal(t, "equal", e.SplitKind)
		assert.False(t, e.CreatedAt.IsZero())
	})

	t.Run("ListExpenses and DeleteExpense", func(t *testing.T) {
		extra := addEqual(t, c, trip.ID, "bo", "3.00", "ana", "bo")

		list, err := c.trip.ListExpenses(ctx, connect.NewRequest(&api.ListExpensesRequest{TripID: trip.ID}))
		require.NoError(t, err)
		require.Len(t, list.Msg.Expenses, 2)
		assert.Equal(t, extra.ID, list.Msg.Expenses[1].ID)
		assert.Equal(t, "3.00", list.Msg.Expenses[1].Amount.StringFixed(2))

		_, err = c.trip.DeleteExpense(ctx, connect.NewRequest(&api.DeleteExpenseRequest{TripID: trip.ID, ExpenseID: extra.ID}))
		require.NoError(t, err)

		list, err = c.trip.ListExpenses(ctx, connect.NewRequest(&api.ListExpensesRequest{TripID: trip.ID}))
		require.NoError(t, err)
		assert.Len(t, list.Msg.Expenses, 1)

		_, err = c.trip.DeleteExpense(ctx, connect.NewRequest(&api.DeleteExpenseRequest{TripID: trip.ID, ExpenseID: extra.ID}))
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})
}

func TestTripService_Rejections(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()
	trip := createTrip(t, c, "ana", "bo")

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{
			name: "unsupported base currency",
			call: func() error {
				_, err := c.trip.CreateTrip(ctx, connect.NewRequest(&api.CreateTripRequest{
					Name: "x", BaseCurrency: "XYZ", Participants: []string{"a"},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "duplicate participant",
			call: func() error {
				_, err := c.trip.CreateTrip(ctx, connect.NewRequest(&api.CreateTripRequest{
					Name: "x", BaseCurrency: "EUR", Participants: []string{"a", "a"},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "payer outside trip",
			call: func() error {
				_, err := c.trip.AddExpense(ctx, connect.NewRequest(&api.AddExpenseRequest{
					TripID:  trip.ID,
					Expense: api.Expense{PayerID: "zed", Amount: d("5.00"), ParticipantIDs: []string{"ana"}},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "expense that cannot be split",
			call: func() error {
				_, err := c.trip.AddExpense(ctx, connect.NewRequest(&api.AddExpenseRequest{
					TripID: trip.ID,
					Expense: api.Expense{PayerID: "ana", Amount: d("5.00"), SplitKind: "weighted",
						ParticipantIDs: []string{"ana", "bo"}},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "unknown trip",
			call: func() error {
				_, err := c.trip.AddExpense(ctx, connect.NewRequest(&api.AddExpenseRequest{
					TripID:  "missing",
					Expense: api.Expense{PayerID: "ana", Amount: d("5.00"), ParticipantIDs: []string{"ana"}},
				}))
				return err
			},
			want: connect.CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/money"
	"github.com/mmynk/tripsettle/internal/storage"
	"github.com/mmynk/tripsettle/pkg/api"
	"github.com/mmynk/tripsettle/pkg/api/apiconnect"
)

// Ensure TripService implements apiconnect.TripServiceHandler
var _ apiconnect.TripServiceHandler = (*TripService)(nil)

// TripService implements the Connect TripService
type TripService struct {
	store storage.Store
}

// NewTripService creates a new TripService with the given storage backend.
func NewTripService(store storage.Store) *TripService {
	return &TripService{store: store}
}

// CreateTrip creates a new trip.
func (s *TripService) CreateTrip(ctx context.Context, req *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	slog.Info("CreateTrip request received",
		"name", req.Msg.Name,
		"participants_count", len(req.Msg.Participants),
	)

	cur, err := money.Lookup(req.Msg.BaseCurrency)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if len(req.Msg.Participants) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("trip needs at least one participant"))
	}
	if dup, ok := firstDuplicate(req.Msg.Participants); ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("participant %q listed twice", dup))
	}

	trip := &models.Trip{
		Name:         req.Msg.Name,
		BaseCurrency: cur.Code,
		Participants: req.Msg.Participants,
	}

	// Save to storage (generates ID and CreatedAt)
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		slog.Error("CreateTrip failed", "error", err)
		return nil, connectError(err)
	}

	slog.Info("Trip created", "trip_id", trip.ID)

	return connect.NewResponse(&api.CreateTripResponse{Trip: tripToAPI(trip)}), nil
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	trip, err := s.store.GetTrip(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("GetTrip failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, connectError(err)
	}
	return connect.NewResponse(&api.GetTripResponse{Trip: tripToAPI(trip)}), nil
}

// AddExpense stores an expense on a trip. Expenses that cannot be split, or
// that name people outside the trip, are rejected.
func (s *TripService) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error) {
	tripID := req.Msg.TripID
	slog.Info("AddExpense request received",
		"trip_id", tripID,
		"payer_id", req.Msg.Expense.PayerID,
		"split_kind", req.Msg.Expense.SplitKind,
	)

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, connectError(err)
	}

	expense := expenseFromAPI(tripID, req.Msg.Expense)
	expense.ID = ""
	if expense.Currency == "" {
		expense.Currency = trip.BaseCurrency
	}
	expense.Currency = strings.ToUpper(expense.Currency)

	if err := checkMembers(trip, expense); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	// Validate against a placeholder ID; the store assigns the real one.
	probe := expense
	probe.ID = "new"
	if _, err := allocate(probe); err != nil {
		return nil, connectError(err)
	}

	if err := s.store.CreateExpense(ctx, &expense); err != nil {
		slog.Error("AddExpense failed", "trip_id", tripID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Expense added", "trip_id", tripID, "expense_id", expense.ID)

	return connect.NewResponse(&api.AddExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// DeleteExpense removes an expense from a trip.
func (s *TripService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID)

	if err := s.store.DeleteExpense(ctx, req.Msg.TripID, req.Msg.ExpenseID); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

// ListExpenses returns every expense of a trip, oldest first.
func (s *TripService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	expenses, err := s.store.GetExpensesByTrip(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("ListExpenses failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, connectError(err)
	}

	out := make([]api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = expenseToAPI(e)
	}
	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// checkMembers verifies the payer and every participant belong to the trip.
func checkMembers(trip *models.Trip, e models.Expense) error {
	members := make(map[string]bool, len(trip.Participants))
	for _, p := range trip.Participants {
		members[p] = true
	}
	if !members[e.PayerUserID] {
		return fmt.Errorf("payer %q is not on trip %s", e.PayerUserID, trip.ID)
	}
	for _, p := range e.ParticipantIDs {
		if !members[p] {
			return fmt.Errorf("participant %q is not on trip %s", p, trip.ID)
		}
	}
	return nil
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return "", false
}

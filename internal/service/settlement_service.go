package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsettle/internal/settlement"
	"github.com/mmynk/tripsettle/pkg/api"
	"github.com/mmynk/tripsettle/pkg/api/apiconnect"
)

// Ensure SettlementService implements apiconnect.SettlementServiceHandler
var _ apiconnect.SettlementServiceHandler = (*SettlementService)(nil)

// Engine is the settlement engine as seen by the RPC layer.
type Engine interface {
	Recompute(ctx context.Context, tripID string) (*settlement.Result, error)
	GetSettlement(ctx context.Context, tripID string) (*settlement.Result, error)
	MarkTransferSettled(ctx context.Context, tripID, transferID string) error
}

// SettlementService implements the Connect SettlementService
type SettlementService struct {
	engine Engine
	retry  RetryPolicy
}

// NewSettlementService creates a new SettlementService backed by engine.
func NewSettlementService(engine Engine, retry RetryPolicy) *SettlementService {
	return &SettlementService{engine: engine, retry: retry}
}

// PreviewSplit shows how an expense would be divided without storing it.
func (s *SettlementService) PreviewSplit(ctx context.Context, req *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error) {
	expense := expenseFromAPI("", req.Msg.Expense)
	if expense.ID == "" {
		expense.ID = "preview"
	}

	contributions, err := allocate(expense)
	if err != nil {
		slog.Debug("PreviewSplit rejected", "error", err)
		return nil, connectError(err)
	}

	for _, c := range contributions {
		slog.Debug("Contribution", "participant_id", c.ParticipantID, "amount", c.Amount.String())
	}

	return connect.NewResponse(&api.PreviewSplitResponse{
		Contributions: contributionsToAPI(contributions),
	}), nil
}

// ComputeSettlement recomputes and persists the trip's settlement.
func (s *SettlementService) ComputeSettlement(ctx context.Context, req *connect.Request[api.ComputeSettlementRequest]) (*connect.Response[api.ComputeSettlementResponse], error) {
	tripID := req.Msg.TripID
	slog.Info("ComputeSettlement request received", "trip_id", tripID)

	res, err := retry(ctx, s.retry, "compute settlement", func() (*settlement.Result, error) {
		return s.engine.Recompute(ctx, tripID)
	})
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.ComputeSettlementResponse{
		Settlement: settlementToAPI(res),
	}), nil
}

// GetSettlement returns the trip's settlement, recomputing a stale snapshot.
func (s *SettlementService) GetSettlement(ctx context.Context, req *connect.Request[api.GetSettlementRequest]) (*connect.Response[api.GetSettlementResponse], error) {
	tripID := req.Msg.TripID

	res, err := retry(ctx, s.retry, "get settlement", func() (*settlement.Result, error) {
		return s.engine.GetSettlement(ctx, tripID)
	})
	if err != nil {
		slog.Error("GetSettlement failed", "trip_id", tripID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.GetSettlementResponse{
		Settlement: settlementToAPI(res),
		Recomputed: res.Recomputed,
	}), nil
}

// MarkTransferSettled records that a transfer was paid.
func (s *SettlementService) MarkTransferSettled(ctx context.Context, req *connect.Request[api.MarkTransferSettledRequest]) (*connect.Response[api.MarkTransferSettledResponse], error) {
	slog.Info("MarkTransferSettled request received",
		"trip_id", req.Msg.TripID,
		"transfer_id", req.Msg.TransferID,
	)

	_, err := retry(ctx, s.retry, "mark transfer settled", func() (struct{}, error) {
		return struct{}{}, s.engine.MarkTransferSettled(ctx, req.Msg.TripID, req.Msg.TransferID)
	})
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.MarkTransferSettledResponse{}), nil
}

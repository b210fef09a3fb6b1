// Package settlement runs trip settlement recomputes: fetch the trip's
// expenses and prior transfers, compute a new snapshot, validate it, and
// replace the persisted one atomically. Every write for a trip happens
// inside that trip's lock.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/tripsettle/internal/calculator"
	"github.com/mmynk/tripsettle/internal/lock"
	"github.com/mmynk/tripsettle/internal/metrics"
	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/storage"
)

const tracerName = "github.com/mmynk/tripsettle/internal/settlement"

// Options tune an Engine.
type Options struct {
	// Tolerance is the residual below which a settled pair counts as discharged.
	// Zero means calculator.DefaultTolerance.
	Tolerance decimal.Decimal
	// FailFast aborts a recompute on the first SplitError instead of
	// skipping the malformed expense.
	FailFast bool
	// RecomputeTimeout bounds lock wait plus fetch, compute and commit.
	// Zero means no deadline beyond the caller's.
	RecomputeTimeout time.Duration
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Result is the outcome of a recompute or a snapshot read.
type Result struct {
	Summary   models.SettlementSummary
	Transfers []models.MinimalTransfer
	// Failures are the expenses left out because they could not be split.
	Failures []*calculator.SplitError
	// Skipped are the IDs of expenses not in the trip's base currency.
	Skipped []string
	// Recomputed is false when a fresh persisted snapshot was returned as is.
	Recomputed bool
}

// OpenTransfers returns the transfers still to be paid.
func (r *Result) OpenTransfers() []models.MinimalTransfer {
	var open []models.MinimalTransfer
	for _, t := range r.Transfers {
		if !t.IsSettled {
			open = append(open, t)
		}
	}
	return open
}

// Engine owns the settlement snapshot of every trip.
type Engine struct {
	store   storage.SettlementStore
	locker  lock.Locker
	metrics *metrics.Metrics
	tracer  trace.Tracer
	opts    Options

	now   func() time.Time
	newID func() string
	// validate gates the commit. Replaceable in tests.
	validate func(models.SettlementSummary, []models.MinimalTransfer, decimal.Decimal) error
}

// NewEngine creates an Engine. A nil metrics value discards measurements.
func NewEngine(store storage.SettlementStore, locker lock.Locker, m *metrics.Metrics, opts Options) *Engine {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = calculator.DefaultTolerance
	}
	if m == nil {
		m = metrics.Discard()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Engine{
		store:    store,
		locker:   locker,
		metrics:  m,
		tracer:   tp.Tracer(tracerName),
		opts:     opts,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		validate: calculator.Validate,
	}
}

func lockKey(tripID string) string {
	return "trip:" + tripID
}

// Recompute rebuilds the trip's settlement from its expenses and settled
// history and replaces the persisted snapshot. Nothing is written when any
// step fails, including validation.
func (e *Engine) Recompute(ctx context.Context, tripID string) (*Result, error) {
	if e.opts.RecomputeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RecomputeTimeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "settlement.recompute",
		trace.WithAttributes(attribute.String("trip_id", tripID)))
	defer span.End()

	start := time.Now()
	slog.Info("Recomputing settlement", "trip_id", tripID)

	var res *Result
	err := e.locker.WithLock(ctx, lockKey(tripID), func(ctx context.Context) error {
		var err error
		res, err = e.recomputeLocked(ctx, tripID)
		return err
	})

	duration := time.Since(start)
	outcome := classify(ctx, err)
	e.metrics.RecomputeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	e.metrics.RecomputesTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		slog.Error("Settlement recompute failed",
			"trip_id", tripID,
			"outcome", outcome,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return nil, err
	}

	open := len(res.OpenTransfers())
	e.metrics.OpenTransfers.WithLabelValues(tripID).Set(float64(open))
	span.SetAttributes(attribute.Int("transfer_count", len(res.Transfers)))
	slog.Info("Settlement recomputed",
		"trip_id", tripID,
		"open_transfers", open,
		"split_failures", len(res.Failures),
		"skipped_expenses", len(res.Skipped),
		"duration_ms", duration.Milliseconds(),
	)
	return res, nil
}

// recomputeLocked must run inside the trip's lock.
func (e *Engine) recomputeLocked(ctx context.Context, tripID string) (*Result, error) {
	computedAt := e.now().UTC()
	trip, expenses, prior, err := e.fetch(ctx, tripID)
	if err != nil {
		return nil, err
	}

	res, err := e.compute(ctx, trip, expenses, prior, computedAt)
	if err != nil {
		return nil, err
	}

	if err := e.validate(res.Summary, res.Transfers, e.opts.Tolerance); err != nil {
		return nil, fmt.Errorf("refusing to commit settlement for trip %s: %w", tripID, err)
	}

	if err := e.commit(ctx, tripID, res); err != nil {
		return nil, err
	}
	return res, nil
}

// fetch reads the trip, then its expenses and transfer set concurrently.
// The trip is read first: its expense change marker becomes the snapshot's
// version, and an expense written after that read moves the marker past it.
func (e *Engine) fetch(ctx context.Context, tripID string) (*models.Trip, []models.Expense, []models.MinimalTransfer, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.fetch")
	defer span.End()

	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, nil, fmt.Errorf("failed to get trip: %w", err)
	}

	var (
		expenses []models.Expense
		prior    []models.MinimalTransfer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = e.store.GetExpensesByTrip(gctx, tripID)
		if err != nil {
			return fmt.Errorf("failed to get expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prior, err = e.store.GetTransfers(gctx, tripID)
		if err != nil {
			return fmt.Errorf("failed to get transfers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, nil, nil, err
	}

	span.SetAttributes(
		attribute.Int("expense_count", len(expenses)),
		attribute.Int("prior_transfer_count", len(prior)),
	)
	return trip, expenses, prior, nil
}

// compute runs allocation, aggregation, netting and reconciliation. It does
// not touch storage.
func (e *Engine) compute(ctx context.Context, trip *models.Trip, expenses []models.Expense, prior []models.MinimalTransfer, computedAt time.Time) (*Result, error) {
	_, span := e.tracer.Start(ctx, "settlement.compute")
	defer span.End()

	res := &Result{Recomputed: true}

	inBase := make([]models.Expense, 0, len(expenses))
	for _, ex := range expenses {
		if !strings.EqualFold(ex.Currency, trip.BaseCurrency) {
			res.Skipped = append(res.Skipped, ex.ID)
			continue
		}
		inBase = append(inBase, ex)
	}
	if len(res.Skipped) > 0 {
		slog.Warn("Skipping expenses outside base currency",
			"trip_id", trip.ID,
			"base_currency", trip.BaseCurrency,
			"expense_ids", res.Skipped,
		)
	}

	allocations, failures := calculator.AllocateAll(inBase)
	if len(failures) > 0 {
		e.metrics.SplitFailures.Add(float64(len(failures)))
		if e.opts.FailFast {
			span.RecordError(failures[0])
			return nil, failures[0]
		}
		for _, f := range failures {
			slog.Warn("Expense left out of settlement",
				"trip_id", trip.ID,
				"expense_id", f.ExpenseID,
				"reason", f.Reason,
			)
		}
		res.Failures = failures
	}

	res.Summary, res.Transfers = calculator.Reconcile(calculator.ReconcileInput{
		TripID:       trip.ID,
		BaseCurrency: trip.BaseCurrency,
		Summaries:    calculator.Summarize(allocations, trip.BaseCurrency),
		Raw:          calculator.NetPairwise(allocations, trip.BaseCurrency),
		Prior:        prior,
		Tolerance:    e.opts.Tolerance,
		Now:          computedAt,
		NewID:        e.newID,
	})
	res.Summary.ExpensesVersion = trip.ExpensesUpdatedAt

	span.SetAttributes(
		attribute.Int("allocated_count", len(allocations)),
		attribute.Int("split_failure_count", len(failures)),
	)
	return res, nil
}

func (e *Engine) commit(ctx context.Context, tripID string, res *Result) error {
	ctx, span := e.tracer.Start(ctx, "settlement.commit")
	defer span.End()

	if err := e.store.ReplaceSettlement(ctx, tripID, res.Summary, res.Transfers); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to replace settlement: %w", err)
	}
	return nil
}

// GetSettlement returns the trip's snapshot, recomputing it first when it is
// missing or stale. A snapshot is stale when the trip's expenses changed
// since the version it was built from, or a transfer was settled after it
// was computed.
func (e *Engine) GetSettlement(ctx context.Context, tripID string) (*Result, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	summary, transfers, err := e.store.GetSettlement(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	if summary == nil {
		return e.Recompute(ctx, tripID)
	}
	if !trip.ExpensesUpdatedAt.Equal(summary.ExpensesVersion) {
		slog.Debug("Settlement stale: expenses changed", "trip_id", tripID)
		return e.Recompute(ctx, tripID)
	}
	for _, t := range transfers {
		if t.IsSettled && t.SettledAt != nil && t.SettledAt.After(summary.LastComputedAt) {
			slog.Debug("Settlement stale: transfer settled", "trip_id", tripID, "transfer_id", t.ID)
			return e.Recompute(ctx, tripID)
		}
	}

	return &Result{Summary: *summary, Transfers: transfers}, nil
}

// MarkTransferSettled records that a transfer was paid. The next recompute
// folds it into the trip's balances. Marking a settled transfer again is a no-op.
func (e *Engine) MarkTransferSettled(ctx context.Context, tripID, transferID string) error {
	ctx, span := e.tracer.Start(ctx, "settlement.mark_transfer_settled",
		trace.WithAttributes(
			attribute.String("trip_id", tripID),
			attribute.String("transfer_id", transferID),
		))
	defer span.End()

	err := e.locker.WithLock(ctx, lockKey(tripID), func(ctx context.Context) error {
		return e.store.MarkTransferSettled(ctx, tripID, transferID, e.now().UTC())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark transfer settled")
		return fmt.Errorf("failed to mark transfer %s settled: %w", transferID, err)
	}
	slog.Info("Transfer marked settled", "trip_id", tripID, "transfer_id", transferID)
	return nil
}

// classify maps a recompute error to a metrics outcome label.
func classify(ctx context.Context, err error) string {
	var (
		splitErr *calculator.SplitError
		valErr   *calculator.ValidationError
		perErr   *storage.PersistenceError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, lock.ErrLockTimeout):
		return metrics.OutcomeLockTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return metrics.OutcomeCanceled
	case errors.Is(err, storage.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.As(err, &splitErr):
		return metrics.OutcomeSplitError
	case errors.As(err, &valErr):
		return metrics.OutcomeValidation
	case errors.As(err, &perErr):
		return metrics.OutcomePersistence
	default:
		return "error"
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/cenkalti/backoff/v5"

	"github.com/mmynk/tripsettle/internal/calculator"
	"github.com/mmynk/tripsettle/internal/lock"
	"github.com/mmynk/tripsettle/internal/storage"
)

// connectError maps an engine or storage error to its Connect code.
func connectError(err error) *connect.Error {
	var (
		splitErr *calculator.SplitError
		valErr   *calculator.ValidationError
		perErr   *storage.PersistenceError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &splitErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &valErr):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, lock.ErrLockTimeout):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.As(err, &perErr):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// RetryPolicy bounds how often a call failing with a PersistenceError is retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// retry runs fn until it succeeds, fails with anything other than a
// PersistenceError, or the policy is exhausted. Recomputes are idempotent,
// so a repeated attempt never double-counts.
func retry[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var perErr *storage.PersistenceError
		if errors.As(err, &perErr) && ctx.Err() == nil {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("Retrying after persistence error", "op", op, "error", err, "wait_ms", wait.Milliseconds())
		}),
	)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"

	"github.com/mmynk/tripsettle/internal/calculator"
	"github.com/mmynk/tripsettle/internal/lock"
	"github.com/mmynk/tripsettle/internal/storage"
)

func persistenceErr() error {
	return fmt.Errorf("failed to get expenses: %w", &storage.PersistenceError{Op: "list expenses", Err: errors.New("disk I/O error")})
}

func validationErr() error {
	return fmt.Errorf("refusing to commit: %w", &calculator.ValidationError{TripID: "t1", Violations: []string{"net balances sum to 0.01"}})
}

func TestConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"not found", fmt.Errorf("trip t1: %w", storage.ErrNotFound), connect.CodeNotFound},
		{"split", &calculator.SplitError{ExpenseID: "e1", Reason: "no participants"}, connect.CodeInvalidArgument},
		{"validation", validationErr(), connect.CodeFailedPrecondition},
		{"lock timeout", fmt.Errorf("%w: trip:t1: %w", lock.ErrLockTimeout, context.DeadlineExceeded), connect.CodeAborted},
		{"deadline", fmt.Errorf("recompute: %w", context.DeadlineExceeded), connect.CodeDeadlineExceeded},
		{"canceled", context.Canceled, connect.CodeCanceled},
		{"persistence", persistenceErr(), connect.CodeUnavailable},
		{"other", errors.New("boom"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connectError(tt.err).Code())
		})
	}
}

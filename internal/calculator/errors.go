package calculator

import (
	"fmt"
	"strings"
)

// SplitError reports malformed allocation data on a single expense.
// It invalidates that expense only; callers decide whether the trip
// computation continues without it.
type SplitError struct {
	ExpenseID string
	Reason    string
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split expense %s: %s", e.ExpenseID, e.Reason)
}

func splitErrorf(expenseID, format string, args ...any) *SplitError {
	return &SplitError{ExpenseID: expenseID, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError lists every ledger invariant a computed snapshot violates.
type ValidationError struct {
	TripID     string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settlement for trip %s violates %d invariant(s): %s",
		e.TripID, len(e.Violations), strings.Join(e.Violations, "; "))
}

// Package lock serializes work per key, such as one settlement recompute per trip.
package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a key could not be acquired before the
// context was done or the acquisition retries ran out.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker runs fn while holding the lock for key. Calls for different keys
// proceed independently.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

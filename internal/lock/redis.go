package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// Ensure RedisLocker implements Locker
var _ Locker = (*RedisLocker)(nil)

// RedisOptions tune the distributed mutex.
type RedisOptions struct {
	// Prefix is prepended to every key.
	Prefix string
	// Expiry bounds how long a crashed holder blocks the key.
	Expiry time.Duration
	// Tries is the number of acquisition attempts.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultRedisOptions returns options suitable for a settlement recompute.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:     "tripsettle:lock:",
		Expiry:     30 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every server process that points at the
// same Redis, built on redsync.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

// NewRedisLocker creates a RedisLocker on top of an existing client.
func NewRedisLocker(client goredislib.UniversalClient, opts RedisOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if opts.Expiry <= 0 {
		return nil, errors.New("lock expiry must be greater than 0")
	}
	if opts.Tries < 1 {
		return nil, errors.New("lock tries must be at least 1")
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}, nil
}

// WithLock acquires the distributed mutex for key, runs fn and releases it.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	name := l.opts.Prefix + key
	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) || ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, err)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	defer func() {
		// Release even if ctx is already done.
		ok, err := mutex.UnlockContext(context.WithoutCancel(ctx))
		if !ok || err != nil {
			slog.Warn("Failed to release lock", "lock_key", name, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}

func isContention(err error) bool {
	return errors.Is(err, redsync.ErrFailed) ||
		strings.Contains(err.Error(), "lock already taken")
}

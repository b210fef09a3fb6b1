package lock

import (
	"context"
	"fmt"
	"sync"
)

// Ensure KeyedMutex implements Locker
var _ Locker = (*KeyedMutex)(nil)

// KeyedMutex is an in-process Locker. Each key gets its own mutex, which is
// dropped once no caller holds or waits for it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	// sem has capacity one; a filled slot means held.
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// WithLock waits for key, honoring ctx cancellation, then runs fn.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l := m.acquireRef(key)
	defer m.releaseRef(key, l)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}
	defer func() { <-l.sem }()

	return fn(ctx)
}

// Held reports whether key is currently locked or awaited.
func (m *KeyedMutex) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

func (m *KeyedMutex) acquireRef(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) releaseRef(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

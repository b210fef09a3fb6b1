package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseExclusion runs workers against one key and reports the highest
// number of concurrent holders observed.
func exerciseExclusion(t *testing.T, l Locker, workers int) int32 {
	t.Helper()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "trip-1", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	return peak
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	assert.Equal(t, int32(1), exerciseExclusion(t, m, 20))
	assert.False(t, m.Held("trip-1"), "idle keys are dropped")
}

func TestKeyedMutex_DifferentKeysRunConcurrently(t *testing.T) {
	m := NewKeyedMutex()
	inA := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "a", func(context.Context) error {
			close(inA)
			<-release
			return nil
		})
	}()
	<-inA

	done := make(chan error, 1)
	go func() {
		done <- m.WithLock(context.Background(), "b", func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
	close(release)
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "trip-1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := m.WithLock(ctx, "trip-1", func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestKeyedMutex_PropagatesError(t *testing.T) {
	m := NewKeyedMutex()
	want := errors.New("boom")
	err := m.WithLock(context.Background(), "trip-1", func(context.Context) error { return want })
	assert.Equal(t, want, err)

	// The key is free again after a failing holder.
	require.NoError(t, m.WithLock(context.Background(), "trip-1", func(context.Context) error { return nil }))
}

package redisclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotLocker(client, "lock:slot:", ttl), mr
}

func TestWithSlotLockRunsSection(t *testing.T) {
	locker, _ := newTestLocker(t, 5*time.Second)

	ran := false
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithSlotLockHeldKey(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)

	slotID := uuid.New()
	require.NoError(t, mr.Set(fmt.Sprintf("lock:slot:%s", slotID), "someone-else"))

	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		t.Fatal("critical section must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestWithSlotLockReleasesAfterSection(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)

	slotID := uuid.New()
	key := fmt.Sprintf("lock:slot:%s", slotID)

	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		assert.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	// Immediately reacquirable.
	require.NoError(t, locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return nil
	}))
}

func TestWithSlotLockReleasesOnError(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)

	slotID := uuid.New()
	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, mr.Exists(fmt.Sprintf("lock:slot:%s", slotID)))
}

// A lock that expired and was taken over must not be deleted by the
// original holder on its way out.
func TestWithSlotLockKeepsForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)

	slotID := uuid.New()
	key := fmt.Sprintf("lock:slot:%s", slotID)

	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		// Simulate expiry plus takeover by another request.
		mr.Del(key)
		require.NoError(t, mr.Set(key, "new-owner"))
		return nil
	})
	require.NoError(t, err)

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "new-owner", val)
}

// The key namespace is configurable so environments sharing one Redis do
// not contend on each other's locks.
func TestWithSlotLockKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	slotID := uuid.New()

	staging := NewRedisSlotLocker(client, "staging:lock:slot:", 5*time.Second)
	err := staging.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		assert.True(t, mr.Exists("staging:lock:slot:"+slotID.String()))

		// A differently-prefixed locker sees a free slot.
		prod := NewRedisSlotLocker(client, "prod:lock:slot:", 5*time.Second)
		return prod.WithSlotLock(ctx, slotID, func(context.Context) error { return nil })
	})
	require.NoError(t, err)

	// Empty prefix falls back to the default namespace.
	fallback := NewRedisSlotLocker(client, "", 5*time.Second)
	require.NoError(t, fallback.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:slot:"+slotID.String()))
		return nil
	}))
}

func TestWithSlotLockMutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, 5*time.Second)

	slotID := uuid.New()
	var winners, losers atomic.Int32
	var inside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
				if inside.Add(1) > 1 {
					t.Error("two holders inside the critical section")
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err == nil {
				winners.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrLockNotAcquired)
				losers.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, winners.Load(), int32(1))
	assert.Equal(t, int32(16), winners.Load()+losers.Load())
}

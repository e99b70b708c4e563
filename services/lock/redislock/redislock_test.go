package redislock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
)

// newLocker talks to REDIS_ADDR when set, to an in-process miniredis otherwise (returned for time travel).
func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()

	var mr *miniredis.Miniredis
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr = miniredis.RunT(t)
		addr = mr.Addr()
	}
	rdb, err := NewClient(core.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, 5*time.Second, 5*time.Millisecond), mr
}

func TestLocker_mutualExclusion(t *testing.T) {
	l, _ := newLocker(t)
	key := "test-" + uuid.New().String()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_contextDone(t *testing.T) {
	l, _ := newLocker(t)
	key := "test-" + uuid.New().String()

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_releaseKeepsOtherOwners(t *testing.T) {
	l, _ := newLocker(t)
	key := "test-" + uuid.New().String()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err)
	unlock()

	// someone else took the lock; a stale unlock must not release it
	require.NoError(t, l.rdb.Set(ctx, keyPrefix+key, "someone-else", time.Second).Err())
	unlock()
	got, err := l.rdb.Get(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocker_releasedKey(t *testing.T) {
	l, _ := newLocker(t)
	key := "test-" + uuid.New().String()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err)
	ttl, err := l.rdb.PTTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= l.ttl, "ttl = %s", ttl)

	unlock()
	n, err := l.rdb.Exists(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocker_expiry(t *testing.T) {
	l, mr := newLocker(t)
	if mr == nil {
		t.Skip("needs miniredis to fast forward time")
	}
	key := "test-" + uuid.New().String()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err)

	// a holder outliving the ttl loses the lock
	mr.FastForward(l.ttl + time.Millisecond)
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock2, err := l.Lock(ctx2, key)
	require.NoError(t, err)

	// the stale holder's unlock leaves the new owner alone
	unlock()
	assert.True(t, mr.Exists(keyPrefix+key))
	unlock2()
	assert.False(t, mr.Exists(keyPrefix+key))
}

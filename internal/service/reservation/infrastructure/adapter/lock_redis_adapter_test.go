package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/pkg/redis"
	"allocator/internal/service/reservation/domain"
)

func newRedisLocks(t *testing.T, wait time.Duration) (*RedisLockService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locks, err := NewRedisLockService(redis.Wrap(rdb), wait)
	require.NoError(t, err)
	return locks, mr
}

func TestRedisLockExclusive(t *testing.T) {
	locks, mr := newRedisLocks(t, 50*time.Millisecond)
	ctx := context.Background()

	h, err := locks.Acquire(ctx, "warehouse-1-item-1", time.Minute, true)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:warehouse-1-item-1"))
	assert.Equal(t, time.Minute, mr.TTL("lock:warehouse-1-item-1"))

	_, err = locks.Acquire(ctx, "warehouse-1-item-1", time.Minute, false)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	_, err = locks.Acquire(ctx, "warehouse-1-item-1", time.Minute, true)
	var lockErr *domain.LockAcquisitionError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "warehouse-1-item-1", lockErr.Key)

	require.NoError(t, locks.Release(ctx, h))
	assert.False(t, mr.Exists("lock:warehouse-1-item-1"))
}

func TestRedisLockBlockingAcquiresAfterRelease(t *testing.T) {
	locks, _ := newRedisLocks(t, 2*time.Second)
	ctx := context.Background()

	h, err := locks.Acquire(ctx, "k", time.Minute, true)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = locks.Release(ctx, h)
	}()

	h2, err := locks.Acquire(ctx, "k", time.Minute, true)
	require.NoError(t, err)
	assert.NotEqual(t, h.Token, h2.Token)
}

func TestRedisLockReleaseChecksToken(t *testing.T) {
	locks, mr := newRedisLocks(t, 0)
	ctx := context.Background()

	stale, err := locks.Acquire(ctx, "k", time.Second, false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locks.Acquire(ctx, "k", time.Minute, false)
	require.NoError(t, err)

	// 过期的持有者不能删掉新持有者的锁
	assert.ErrorIs(t, locks.Release(ctx, stale), ErrLockNotHeld)
	assert.True(t, mr.Exists("lock:k"))
	assert.NoError(t, locks.Release(ctx, fresh))
}

func TestRedisLockContextCancel(t *testing.T) {
	locks, _ := newRedisLocks(t, 0)
	_, err := locks.Acquire(context.Background(), "k", time.Minute, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "k", time.Minute, true)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
}

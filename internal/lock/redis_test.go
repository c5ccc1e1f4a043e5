package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/deadman/internal/config"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisLocker(client, RedisOptions{
		TTL:           time.Second,
		RetryInterval: 5 * time.Millisecond,
	})
}

// TestRedisLocker_AcquireRelease stores the lease with a TTL and removes it on release.
func TestRedisLocker_AcquireRelease(t *testing.T) {
	t.Parallel()

	mr, locker := setupTestRedis(t)

	release, err := locker.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	key := DefaultKeyPrefix + "s-1"
	require.True(t, mr.Exists(key))
	require.Equal(t, time.Second, mr.TTL(key))

	release()
	require.False(t, mr.Exists(key))
}

// TestRedisLocker_WaitsForHolder blocks a second caller until the context ends.
func TestRedisLocker_WaitsForHolder(t *testing.T) {
	t.Parallel()

	_, locker := setupTestRedis(t)

	release, err := locker.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, "s-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRedisLocker_ExpiredLeaseIsNotStolen keeps the new holder's lease when
// the previous holder releases late.
func TestRedisLocker_ExpiredLeaseIsNotStolen(t *testing.T) {
	t.Parallel()

	mr, locker := setupTestRedis(t)
	key := DefaultKeyPrefix + "s-1"

	releaseOld, err := locker.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(key))

	releaseNew, err := locker.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	releaseOld()
	require.True(t, mr.Exists(key))

	releaseNew()
	require.False(t, mr.Exists(key))
}

// TestRedisLocker_RenewsLease keeps the key alive past its TTL while it is held.
func TestRedisLocker_RenewsLease(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, RedisOptions{TTL: 300 * time.Millisecond})
	key := DefaultKeyPrefix + "s-1"

	release, err := locker.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 250*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	require.True(t, mr.Exists(key))

	release()
	require.False(t, mr.Exists(key))
}

// TestNewFromConfig builds both lock flavours.
func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	ctx := context.Background()

	memory, err := NewFromConfig(ctx, config.Lock{Type: config.LockMemory})
	require.NoError(t, err)
	require.IsType(t, &KeyedMutex{}, memory)

	shared, err := NewFromConfig(ctx, config.Lock{Type: config.LockRedis, RedisAddress: mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &RedisLocker{}, shared)
	require.NoError(t, shared.(*RedisLocker).Close())

	_, err = NewFromConfig(ctx, config.Lock{Type: "etcd"})
	require.ErrorIs(t, err, errUnknownLockType)
}

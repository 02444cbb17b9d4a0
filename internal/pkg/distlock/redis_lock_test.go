package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLockMutualExclusion(t *testing.T) {
	_, client := testClient(t)
	ctx := context.Background()

	first := NewRedisLock(client, "scheduler:anomaly-scan", 30*time.Second)
	second := NewRedisLock(client, "scheduler:anomaly-scan", 30*time.Second)

	acquired, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Release(ctx))

	acquired, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	_, client := testClient(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "score:org1:acct1", 30*time.Second)
	other := NewRedisLock(client, "score:org1:acct1", 30*time.Second)

	acquired, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// A non-owner release is a no-op, not a steal.
	require.NoError(t, other.Release(ctx))

	acquired, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := testClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "scheduler:alert-check", time.Second)
	acquired, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(2 * time.Second)

	next := NewRedisLock(client, "scheduler:alert-check", time.Second)
	acquired, err = next.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedisLockExtend(t *testing.T) {
	mr, client := testClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "retention-cleanup", time.Second)
	acquired, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))
	mr.FastForward(2 * time.Second)

	// Still held after the original TTL thanks to the extension.
	next := NewRedisLock(client, "retention-cleanup", time.Second)
	acquired, err = next.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestNewLockPrefersRedis(t *testing.T) {
	_, client := testClient(t)

	_, isRedis := NewLock(client, nil, "k", time.Second).(*RedisLock)
	assert.True(t, isRedis)

	_, isPG := NewLock(nil, nil, "k", time.Second).(*PGAdvisoryLock)
	assert.True(t, isPG)
}

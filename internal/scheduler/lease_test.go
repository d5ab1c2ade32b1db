package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLease_SingleHolder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := NewRedisLease(client, "support-desk:poller", 90*time.Second)
	second := NewRedisLease(client, "support-desk:poller", 90*time.Second)
	require.NotEqual(t, first.Owner(), second.Owner())

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews")

	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("support-desk:poller"), "non-holder release is a no-op")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLease_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	crashed := NewRedisLease(client, "lease", 30*time.Second)
	standby := NewRedisLease(client, "lease", 30*time.Second)

	ok, err := crashed.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = standby.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLease_FormerHolderCannotExtendNewHolder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	former := NewRedisLease(client, "lease", 30*time.Second)
	current := NewRedisLease(client, "lease", 30*time.Second)

	ok, err := former.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	ok, err = current.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(20 * time.Second)
	ok, err = former.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("lease"), "new holder's ttl untouched")

	require.NoError(t, former.Release(ctx))
	holder, err := mr.Get("lease")
	require.NoError(t, err)
	assert.Equal(t, current.Owner(), holder)
}

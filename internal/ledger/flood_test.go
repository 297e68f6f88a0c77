package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestFloodLimiter_UnderLimit(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	fl := NewFloodLimiter(rdb)
	ctx := context.Background()

	allowed, err := fl.Allow(ctx, 42, 10)
	require.NoError(t, err)
	assert.True(t, allowed)

	usage, err := fl.MinuteUsage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}

func TestFloodLimiter_AtLimit(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	fl := NewFloodLimiter(rdb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := fl.Allow(ctx, 42, 5)
		require.NoError(t, err)
		assert.True(t, allowed, "message %d should be allowed", i+1)
	}

	allowed, err := fl.Allow(ctx, 42, 5)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestFloodLimiter_UsersIndependent(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	fl := NewFloodLimiter(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fl.Allow(ctx, 1, 3)
		require.NoError(t, err)
	}

	allowed, err := fl.Allow(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = fl.Allow(ctx, 2, 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFloodLimiter_SlidingWindow(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	fl := NewFloodLimiter(rdb)
	ctx := context.Background()

	// Entries older than the window must not count
	oldTime := float64(time.Now().Add(-70 * time.Second).UnixMilli())
	for i := 0; i < 3; i++ {
		rdb.ZAdd(ctx, floodKey(42), redis.Z{Score: oldTime + float64(i), Member: fmt.Sprintf("old:%d", i)})
	}

	allowed, err := fl.Allow(ctx, 42, 3)
	require.NoError(t, err)
	assert.True(t, allowed)

	usage, err := fl.MinuteUsage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}

func TestFloodLimiter_RedisDown(t *testing.T) {
	rdb, mr := setupMiniredis(t)
	fl := NewFloodLimiter(rdb)
	mr.Close()

	_, err := fl.Allow(context.Background(), 42, 3)
	assert.Error(t, err)
}

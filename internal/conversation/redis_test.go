package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T, retention int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, retention, ttl), mr
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, _ := setupMiniredis(t, 0, 0)
		return s
	})
}

func TestRedisStore_Retention(t *testing.T) {
	s, _ := setupMiniredis(t, 3, 0)
	ctx := context.Background()

	for _, c := range []string{"A", "B", "C", "D", "E"} {
		_, err := s.Append(ctx, 1, RoleUser, c)
		require.NoError(t, err)
	}

	turns, err := s.LastN(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "C", turns[0].Content)
	assert.Equal(t, "E", turns[2].Content)
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := setupMiniredis(t, 10, time.Hour)
	ctx := context.Background()

	_, err := s.Append(ctx, 1, RoleUser, "hello")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(listKey(1)))

	mr.FastForward(2 * time.Hour)
	turns, err := s.LastN(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStore_NoTTLByDefault(t *testing.T) {
	s, mr := setupMiniredis(t, 10, 0)

	_, err := s.Append(context.Background(), 1, RoleUser, "hello")
	require.NoError(t, err)
	assert.Zero(t, mr.TTL(listKey(1)))
}

func TestRedisStore_SkipsMalformedEntries(t *testing.T) {
	s, mr := setupMiniredis(t, 10, 0)
	ctx := context.Background()

	_, err := s.Append(ctx, 1, RoleUser, "good")
	require.NoError(t, err)
	_, err = mr.Lpush(listKey(1), "not-json")
	require.NoError(t, err)

	turns, err := s.LastN(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good", turns[0].Content)
}

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisRetention caps the Redis list per user.
const DefaultRedisRetention = 200

// RedisStore keeps history in Redis lists with an optional expiry.
type RedisStore struct {
	client    redis.Cmdable
	retention int
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisStore creates a Redis-backed store. retention <= 0 uses DefaultRedisRetention;
// ttl == 0 keeps lists forever.
func NewRedisStore(client redis.Cmdable, retention int, ttl time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRedisRetention
	}
	return &RedisStore{client: client, retention: retention, ttl: ttl, now: time.Now}
}

func listKey(userID int64) string {
	return fmt.Sprintf("turns:%d", userID)
}

func seqCounterKey(userID int64) string {
	return fmt.Sprintf("turns:%d:seq", userID)
}

func (s *RedisStore) Append(ctx context.Context, userID int64, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("invalid role %q", role)
	}

	seq, err := s.client.Incr(ctx, seqCounterKey(userID)).Result()
	if err != nil {
		return Turn{}, fmt.Errorf("incr %s: %w", seqCounterKey(userID), err)
	}

	t := Turn{Seq: seq, UserID: userID, Role: role, Content: content, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(t)
	if err != nil {
		return Turn{}, fmt.Errorf("marshaling turn: %w", err)
	}

	key := listKey(userID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-s.retention), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Turn{}, fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return t, nil
}

func (s *RedisStore) LastN(ctx context.Context, userID int64, n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}

	key := listKey(userID)
	// LRANGE key -n -1 returns the last n elements, oldest first
	vals, err := s.client.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue // skip malformed entries
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear drops the list but keeps the sequence counter.
func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, listKey(userID)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", listKey(userID), err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, userID int64) (int, error) {
	n, err := s.client.LLen(ctx, listKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", listKey(userID), err)
	}
	return int(n), nil
}

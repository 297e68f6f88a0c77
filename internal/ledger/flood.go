package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	floodKeyPrefix = "flood:minute:"
	floodWindow    = 60 * time.Second
	floodKeyTTL    = 90 * time.Second
)

// FloodLimiter caps inbound messages per user with a Redis sorted-set sliding window.
type FloodLimiter struct {
	rdb redis.Cmdable
}

// NewFloodLimiter creates a new Redis-based flood limiter.
func NewFloodLimiter(rdb redis.Cmdable) *FloodLimiter {
	return &FloodLimiter{rdb: rdb}
}

func floodKey(userID int64) string {
	return floodKeyPrefix + strconv.FormatInt(userID, 10)
}

// Allow reports whether the user is under maxPerMinute and, if so, records the message.
func (fl *FloodLimiter) Allow(ctx context.Context, userID int64, maxPerMinute int) (bool, error) {
	key := floodKey(userID)
	now := time.Now()
	nowMs := float64(now.UnixMilli())
	windowStart := float64(now.Add(-floodWindow).UnixMilli())

	pipe := fl.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(windowStart, 'f', 0, 64))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("flood limiter pipeline (clean+count): %w", err)
	}

	count := countCmd.Val()
	if count >= int64(maxPerMinute) {
		return false, nil
	}

	pipe = fl.rdb.Pipeline()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), count)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowMs, Member: member})
	pipe.Expire(ctx, key, floodKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("flood limiter pipeline (add): %w", err)
	}

	return true, nil
}

// MinuteUsage returns the number of messages in the current window.
func (fl *FloodLimiter) MinuteUsage(ctx context.Context, userID int64) (int, error) {
	now := time.Now()
	windowStart := float64(now.Add(-floodWindow).UnixMilli())

	count, err := fl.rdb.ZCount(ctx, floodKey(userID),
		strconv.FormatFloat(windowStart, 'f', 0, 64), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("getting minute usage: %w", err)
	}
	return int(count), nil
}

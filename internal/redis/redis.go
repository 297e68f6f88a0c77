// Package redis connects the optional Redis backend used for flood control,
// admin rate limiting and conversation history.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/mila/internal/config"
)

const (
	clientName = "mila-bot"
	// every turn waits on the flood check, so calls fail fast and the caller fails open
	opTimeout   = 500 * time.Millisecond
	pingTimeout = 2 * time.Second
)

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	if err := Ping(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	slog.Info("redis ready", "addr", cfg.Addr(), "db", cfg.DB)
	return client, nil
}

// Ping reports whether Redis answers within a short deadline.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

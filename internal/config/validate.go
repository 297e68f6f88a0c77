package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that must stop the process.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Transport credential
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, "TELEGRAM_TOKEN is required")
	}

	// Quota and history
	if c.Bot.FreeLimit < 0 {
		errs = append(errs, fmt.Sprintf("FREE_LIMIT must be >= 0, got %d", c.Bot.FreeLimit))
	}
	if c.Bot.PaidDuration <= 0 {
		errs = append(errs, "VIP_DAYS must be positive")
	}
	if c.Bot.HistoryLen < 0 {
		errs = append(errs, fmt.Sprintf("HISTORY_LEN must be >= 0, got %d", c.Bot.HistoryLen))
	}

	// Completion service
	if c.Completion.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("DEEPSEEK_CONCURRENCY must be >= 1, got %d", c.Completion.Concurrency))
	}
	if c.Completion.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("DEEPSEEK_MAX_ATTEMPTS must be >= 1, got %d", c.Completion.MaxAttempts))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, "DEEPSEEK_TIMEOUT must be positive")
	}

	// Storage
	switch c.Storage.Driver {
	case StorageBolt:
		if c.Storage.BoltPath == "" {
			errs = append(errs, "BOLT_PATH is required for bolt storage")
		}
	case StoragePostgres:
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for postgres storage")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be bolt or postgres, got %q", c.Storage.Driver))
	}
	switch c.Storage.HistoryDriver {
	case "":
	case HistoryRedis:
		if !c.Redis.Enabled {
			errs = append(errs, "HISTORY_DRIVER=redis requires REDIS_ENABLED=true")
		}
	default:
		errs = append(errs, fmt.Sprintf("HISTORY_DRIVER must be empty or redis, got %q", c.Storage.HistoryDriver))
	}

	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// HTTP server and admin API
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Admin.Enabled() && len(c.Admin.JWTSecret) < 32 {
		errs = append(errs, "ADMIN_JWT_SECRET must be at least 32 characters")
	}
	if c.Admin.Enabled() && !c.Server.Enabled {
		errs = append(errs, "ADMIN_JWT_SECRET is set but SERVER_ENABLED=false")
	}

	// Completion key: warn only, the bot answers with a setup hint
	if c.Completion.APIKey == "" {
		slog.Warn("DEEPSEEK_KEY is empty, chat replies will ask for it")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

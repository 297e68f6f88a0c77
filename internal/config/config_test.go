package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, "deepseek-chat", cfg.Completion.Model)
	assert.Equal(t, "https://api.deepseek.com", cfg.Completion.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, 1, cfg.Completion.Concurrency)
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
	assert.Equal(t, 10, cfg.Bot.FreeLimit)
	assert.Equal(t, 30*24*time.Hour, cfg.Bot.PaidDuration)
	assert.Equal(t, 12, cfg.Bot.HistoryLen)
	assert.Equal(t, "https://t.me/CryptoBot", cfg.Bot.PaymentLink)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Reminder.Threshold)
	assert.Equal(t, 10*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, StorageBolt, cfg.Storage.Driver)
	assert.Equal(t, "mila.db", cfg.Storage.BoltPath)
	assert.False(t, cfg.NATS.Enabled())
	assert.Equal(t, 7*24*time.Hour, cfg.NATS.EventRetention)
	assert.False(t, cfg.Admin.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("FREE_LIMIT", "0")
	t.Setenv("VIP_DAYS", "7")
	t.Setenv("HISTORY_LEN", "4")
	t.Setenv("DEEPSEEK_FALLBACK_MODELS", "deepseek-reasoner, deepseek-v3 ,")
	t.Setenv("DEEPSEEK_TIMEOUT", "15s")
	t.Setenv("REMINDER_ENABLED", "false")
	t.Setenv("ADMIN_IDS", "42, 7")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Bot.FreeLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Bot.PaidDuration)
	assert.Equal(t, 4, cfg.Bot.HistoryLen)
	assert.Equal(t, []string{"deepseek-reasoner", "deepseek-v3"}, cfg.Completion.FallbackModels)
	assert.Equal(t, 15*time.Second, cfg.Completion.Timeout)
	assert.False(t, cfg.Reminder.Enabled)
	assert.Equal(t, []int64{42, 7}, cfg.Bot.AdminIDs)
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TELEGRAM_TOKEN=from-file\nDEEPSEEK_MODEL=deepseek-v3\n"), 0o600))

	cfg, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-v3", cfg.Completion.Model)
	if os.Getenv("TELEGRAM_TOKEN") == "" {
		assert.Equal(t, "from-file", cfg.Telegram.Token)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("REMINDER_THRESHOLD", "two hours")

	_, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reminder.threshold")
}

func TestLoad_InvalidAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "42,abc")

	_, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin ids")
}

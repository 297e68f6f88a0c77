package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Telegram   TelegramConfig
	Completion CompletionConfig
	Bot        BotConfig
	Reminder   ReminderConfig
	Storage    StorageConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Server     ServerConfig
	Admin      AdminConfig
	Log        LogConfig
}

type TelegramConfig struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
}

// CompletionConfig describes the remote chat-completion service.
type CompletionConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModels []string
	SafeModel      string
	Timeout        time.Duration
	Concurrency    int
	MaxAttempts    int
	Backoff        time.Duration
	Temperature    float64
	MaxTokens      int
}

type BotConfig struct {
	FreeLimit      int
	PaidDuration   time.Duration
	PaymentLink    string
	HistoryLen     int
	PromptMaxChars int
	PersonaFile    string
	AdminIDs       []int64
	FloodLimit     int
}

type ReminderConfig struct {
	Enabled   bool
	Threshold time.Duration
	Interval  time.Duration
	Delay     time.Duration
}

// StorageConfig selects the persistence backends.
// Driver covers accounts and history; HistoryDriver may move history to Redis.
type StorageConfig struct {
	Driver        string
	BoltPath      string
	HistoryDriver string
	HistoryTTL    time.Duration
}

type DBConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	MaxConns   int32
	Migrations string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL            string
	EventRetention time.Duration
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type AdminConfig struct {
	JWTSecret   string
	CORSOrigins []string
	RateLimit   int
}

func (c AdminConfig) Enabled() bool {
	return c.JWTSecret != ""
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	StorageBolt     = "bolt"
	StoragePostgres = "postgres"
	HistoryRedis    = "redis"
)

func Load() (*Config, error) {
	return load(".env")
}

func load(dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(dotenvPath), dotenv.ParserEnv("", ".", envKey))

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:  k.String("telegram.token"),
			APIURL: k.String("telegram.api.url"),
		},
		Completion: CompletionConfig{
			APIKey:         k.String("deepseek.key"),
			BaseURL:        k.String("deepseek.url"),
			Model:          k.String("deepseek.model"),
			FallbackModels: splitList(k.String("deepseek.fallback.models")),
			SafeModel:      k.String("deepseek.safe.model"),
			Concurrency:    k.Int("deepseek.concurrency"),
			MaxAttempts:    k.Int("deepseek.max.attempts"),
			Temperature:    k.Float64("deepseek.temperature"),
			MaxTokens:      k.Int("deepseek.max.tokens"),
		},
		Bot: BotConfig{
			FreeLimit:      intOr(k, "free.limit", 10),
			PaymentLink:    k.String("payment.link"),
			HistoryLen:     intOr(k, "history.len", 12),
			PromptMaxChars: intOr(k, "prompt.max.chars", 16000),
			PersonaFile:    k.String("persona.file"),
			FloodLimit:     intOr(k, "flood.limit", 20),
		},
		Reminder: ReminderConfig{
			Enabled: boolOr(k, "reminder.enabled", true),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(k.String("storage.driver")),
			BoltPath:      k.String("bolt.path"),
			HistoryDriver: strings.ToLower(k.String("history.driver")),
		},
		DB: DBConfig{
			Host:       k.String("db.host"),
			Port:       k.Int("db.port"),
			User:       k.String("db.user"),
			Password:   k.String("db.password"),
			Name:       k.String("db.name"),
			SSLMode:    k.String("db.sslmode"),
			MaxConns:   int32(k.Int("db.max.conns")),
			Migrations: k.String("db.migrations"),
		},
		Redis: RedisConfig{
			Enabled:  k.Bool("redis.enabled"),
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Server: ServerConfig{
			Enabled: boolOr(k, "server.enabled", true),
			Host:    k.String("server.host"),
			Port:    k.Int("server.port"),
		},
		Admin: AdminConfig{
			JWTSecret:   k.String("admin.jwt.secret"),
			CORSOrigins: splitList(k.String("admin.cors.origins")),
			RateLimit:   intOr(k, "admin.rate.limit", 60),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = "https://api.telegram.org"
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "deepseek-chat"
	}
	if cfg.Completion.SafeModel == "" {
		cfg.Completion.SafeModel = "deepseek-chat"
	}
	if cfg.Completion.Concurrency == 0 {
		cfg.Completion.Concurrency = 1
	}
	if cfg.Completion.MaxAttempts == 0 {
		cfg.Completion.MaxAttempts = 3
	}
	if cfg.Bot.PaymentLink == "" {
		cfg.Bot.PaymentLink = "https://t.me/CryptoBot"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageBolt
	}
	if cfg.Storage.BoltPath == "" {
		cfg.Storage.BoltPath = "mila.db"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "mila"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "mila"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	vipDays := intOr(k, "vip.days", 30)
	cfg.Bot.PaidDuration = time.Duration(vipDays) * 24 * time.Hour

	cfg.Bot.AdminIDs, err = parseIDs(k.String("admin.ids"))
	if err != nil {
		return nil, fmt.Errorf("parsing admin ids: %w", err)
	}

	// Parse durations
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"telegram.poll.timeout", "30s", &cfg.Telegram.PollTimeout},
		{"deepseek.timeout", "60s", &cfg.Completion.Timeout},
		{"deepseek.backoff", "1s", &cfg.Completion.Backoff},
		{"reminder.threshold", "2h", &cfg.Reminder.Threshold},
		{"reminder.interval", "10m", &cfg.Reminder.Interval},
		{"reminder.delay", "30s", &cfg.Reminder.Delay},
		{"history.ttl", "0s", &cfg.Storage.HistoryTTL},
		{"nats.event.retention", "168h", &cfg.NATS.EventRetention},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		*d.dest, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

func intOr(k *koanf.Koanf, key string, def int) int {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return def
	}
	return k.Int(key)
}

func boolOr(k *koanf.Koanf, key string, def bool) bool {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return def
	}
	return k.Bool(key)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

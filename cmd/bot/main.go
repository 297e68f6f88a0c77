package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/mila/internal/admin"
	"github.com/aiox-platform/mila/internal/api"
	"github.com/aiox-platform/mila/internal/audit"
	"github.com/aiox-platform/mila/internal/auth"
	"github.com/aiox-platform/mila/internal/completion"
	"github.com/aiox-platform/mila/internal/config"
	"github.com/aiox-platform/mila/internal/conversation"
	"github.com/aiox-platform/mila/internal/database"
	"github.com/aiox-platform/mila/internal/ledger"
	mw "github.com/aiox-platform/mila/internal/middleware"
	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/orchestrator"
	"github.com/aiox-platform/mila/internal/prompt"
	iredis "github.com/aiox-platform/mila/internal/redis"
	"github.com/aiox-platform/mila/internal/server"
	"github.com/aiox-platform/mila/internal/sweeper"
	"github.com/aiox-platform/mila/internal/transport/telegram"
)

var botCommands = []telegram.BotCommand{
	{Command: "start", Description: "Начать общение с Милой"},
	{Command: "help", Description: "Что я умею"},
	{Command: "profile", Description: "Мой профиль и лимиты"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var checks []api.HealthCheck

	// Storage
	var (
		accounts ledger.Store
		history  conversation.Store
		pool     *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		p, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer p.Close()
		pool = p
		accounts = ledger.NewPostgresStore(pool)
		history = conversation.NewPostgresStore(pool)
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return database.HealthCheck(ctx, pool)
		}})
	default:
		db, err := database.OpenBolt(cfg.Storage.BoltPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if accounts, err = ledger.NewBoltStore(db); err != nil {
			return err
		}
		if history, err = conversation.NewBoltStore(db); err != nil {
			return err
		}
		checks = append(checks, api.HealthCheck{Name: "bolt", Check: func(context.Context) error {
			return db.View(func(*bolt.Tx) error { return nil })
		}})
	}

	// Redis
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		c, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer c.Close()
		redisClient = c
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return iredis.Ping(ctx, redisClient)
		}})
		if cfg.Storage.HistoryDriver == config.HistoryRedis {
			history = conversation.NewRedisStore(redisClient, conversation.DefaultRedisRetention, cfg.Storage.HistoryTTL)
			slog.Info("conversation history kept in redis", "ttl", cfg.Storage.HistoryTTL)
		}
	}

	// NATS
	var natsClient *inats.Client
	if cfg.NATS.Enabled() {
		c, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer c.Close()
		natsClient = c
		checks = append(checks, api.HealthCheck{Name: "nats", Check: natsClient.Check})
	}

	persona, err := loadPersona(cfg.Bot.PersonaFile)
	if err != nil {
		return err
	}

	// Completion
	client := completion.NewClient(cfg.Completion.BaseURL, cfg.Completion.APIKey)
	client.Temperature = cfg.Completion.Temperature
	client.MaxTokens = cfg.Completion.MaxTokens
	gateway := completion.NewGateway(client, completion.Config{
		Configured:     cfg.Completion.APIKey != "",
		Model:          cfg.Completion.Model,
		FallbackModels: cfg.Completion.FallbackModels,
		SafeModel:      cfg.Completion.SafeModel,
		Timeout:        cfg.Completion.Timeout,
		Concurrency:    cfg.Completion.Concurrency,
		MaxAttempts:    cfg.Completion.MaxAttempts,
		Backoff:        cfg.Completion.Backoff,
	}, completion.DefaultReplies())

	// Telegram
	tgAPI := telegram.NewAPI(
		&http.Client{Timeout: cfg.Telegram.PollTimeout + 15*time.Second},
		cfg.Telegram.APIURL,
		cfg.Telegram.Token,
	)
	username, err := tgAPI.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking telegram token: %w", err)
	}
	slog.Info("telegram bot authorized", "username", username)
	if err := tgAPI.SetMyCommands(ctx, botCommands); err != nil {
		slog.Warn("setting bot commands", "error", err)
	}
	bot := telegram.NewBot(tgAPI, cfg.Telegram.PollTimeout)

	// Core
	accountLedger := ledger.New(accounts, cfg.Bot.FreeLimit, cfg.Bot.PaidDuration)
	orch := orchestrator.New(accountLedger, history, gateway, bot, persona, orchestrator.Options{
		HistoryLen:     cfg.Bot.HistoryLen,
		PromptMaxChars: cfg.Bot.PromptMaxChars,
		PaymentLink:    cfg.Bot.PaymentLink,
		AdminIDs:       cfg.Bot.AdminIDs,
		FloodLimit:     cfg.Bot.FloodLimit,
	})
	bot.SetHandler(orch)

	sweep := sweeper.New(accountLedger, bot, persona.Reminders, orchestrator.MainMenu(), sweeper.Config{
		Threshold: cfg.Reminder.Threshold,
		Interval:  cfg.Reminder.Interval,
		Delay:     cfg.Reminder.Delay,
	})

	if redisClient != nil {
		orch.WithFlood(ledger.NewFloodLimiter(redisClient))
	}

	var events admin.EventLister
	if natsClient != nil {
		publisher := inats.NewPublisher(natsClient.JetStream())
		orch.WithEvents(publisher)
		sweep.WithEvents(publisher)
	}

	g, gctx := errgroup.WithContext(ctx)

	if natsClient != nil && pool != nil {
		repo := audit.NewRepository(pool)
		events = repo
		consumer := audit.NewConsumer(repo, inats.NewConsumerManager(natsClient.JetStream()))
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		orch.Run(gctx)
		return nil
	})
	if cfg.Reminder.Enabled {
		g.Go(func() error {
			sweep.Run(gctx)
			return nil
		})
	}

	if cfg.Server.Enabled {
		handlers := api.HandlerSet{}
		routerCfg := api.RouterConfig{
			CORSAllowedOrigins: cfg.Admin.CORSOrigins,
			Checks:             checks,
		}
		if cfg.Admin.Enabled() {
			jwtManager := auth.NewJWTManager(cfg.Admin.JWTSecret, 0)
			handlers = admin.NewHandler(orch, events).Handlers(auth.Middleware(jwtManager))
			if redisClient != nil && cfg.Admin.RateLimit > 0 {
				routerCfg.AdminRateLimiter = mw.NewRateLimiter(redisClient, cfg.Admin.RateLimit, time.Minute).Middleware
			}
			slog.Info("admin api enabled")
		}

		srv := server.New(cfg.Server, api.NewRouter(routerCfg, handlers))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	slog.Info("mila started",
		"storage", cfg.Storage.Driver,
		"redis", redisClient != nil,
		"nats", natsClient != nil,
		"model", cfg.Completion.Model,
	)
	return g.Wait()
}

func loadPersona(path string) (prompt.Persona, error) {
	if path == "" {
		return prompt.DefaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return prompt.Persona{}, fmt.Errorf("reading persona file: %w", err)
	}
	slog.Info("persona loaded", "path", path)
	return prompt.ParsePersona(data), nil
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

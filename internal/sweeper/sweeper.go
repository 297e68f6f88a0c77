// Package sweeper nudges users who have gone quiet.
package sweeper

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aiox-platform/mila/internal/ledger"
	"github.com/aiox-platform/mila/internal/metrics"
	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/transport"
)

// EventPublisher emits bot events for auditing.
type EventPublisher interface {
	PublishBotEvent(ctx context.Context, event inats.BotEvent) error
}

type Config struct {
	Threshold time.Duration
	Interval  time.Duration
	Delay     time.Duration
}

// Sweeper sends one reminder per scan to each account idle longer than Threshold.
type Sweeper struct {
	ledger    *ledger.Ledger
	sender    transport.Sender
	reminders []string
	menu      *transport.Menu
	cfg       Config
	events    EventPublisher
	pick      func(n int) int
}

func New(l *ledger.Ledger, sender transport.Sender, reminders []string, menu *transport.Menu, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2 * time.Hour
	}
	return &Sweeper{
		ledger:    l,
		sender:    sender,
		reminders: reminders,
		menu:      menu,
		cfg:       cfg,
		pick:      rand.IntN,
	}
}

func (s *Sweeper) WithEvents(p EventPublisher) *Sweeper {
	s.events = p
	return s
}

// Run waits Delay, then sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if len(s.reminders) == 0 {
		slog.Warn("sweeper: no reminder texts, not starting")
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.Delay):
	}

	slog.Info("sweeper started", "threshold", s.cfg.Threshold, "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one scan and returns the number of reminders delivered.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if len(s.reminders) == 0 {
		return 0
	}

	idle, err := s.ledger.Idle(ctx, s.cfg.Threshold)
	if err != nil {
		slog.Error("sweeper: listing idle accounts", "error", err)
		return 0
	}

	delivered := 0
	for _, acc := range idle {
		if ctx.Err() != nil {
			break
		}

		text := s.reminders[s.pick(len(s.reminders))]
		if err := s.sender.Send(ctx, acc.UserID, text, s.menu); err != nil {
			metrics.RemindersTotal.WithLabelValues("failed").Inc()
			slog.Warn("sweeper: delivering reminder", "user_id", acc.UserID, "error", err)
		} else {
			delivered++
			metrics.RemindersTotal.WithLabelValues("sent").Inc()
			s.publish(ctx, acc.UserID)
		}

		// refresh even on failure so a blocked user is not retried every scan
		if err := s.ledger.Touch(ctx, acc.UserID); err != nil {
			slog.Error("sweeper: touching account", "user_id", acc.UserID, "error", err)
		}
	}

	if len(idle) > 0 {
		slog.Info("sweeper: scan finished", "idle", len(idle), "delivered", delivered)
	}
	return delivered
}

func (s *Sweeper) publish(ctx context.Context, userID int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBotEvent(ctx, inats.NewBotEvent(userID, inats.EventReminderSent, nil)); err != nil {
		slog.Warn("sweeper: publishing event", "user_id", userID, "error", err)
	}
}

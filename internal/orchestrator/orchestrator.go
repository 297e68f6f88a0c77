// Package orchestrator runs one chat turn per inbound message and serves
// the bot's commands and menu actions.
package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aiox-platform/mila/internal/completion"
	"github.com/aiox-platform/mila/internal/conversation"
	"github.com/aiox-platform/mila/internal/ledger"
	"github.com/aiox-platform/mila/internal/metrics"
	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/prompt"
	"github.com/aiox-platform/mila/internal/transport"
)

const (
	janitorInterval = 10 * time.Minute
	sessionMaxIdle  = time.Hour
)

// Completer produces a presentable reply for a prompt.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, msgs []prompt.Message) completion.Reply
	Replies() completion.Replies
}

// FloodChecker limits messages per user per minute.
type FloodChecker interface {
	Allow(ctx context.Context, userID int64, maxPerMinute int) (bool, error)
	MinuteUsage(ctx context.Context, userID int64) (int, error)
}

// EventPublisher emits bot events for auditing.
type EventPublisher interface {
	PublishBotEvent(ctx context.Context, event inats.BotEvent) error
}

type Options struct {
	HistoryLen     int
	PromptMaxChars int
	PaymentLink    string
	AdminIDs       []int64
	FloodLimit     int
	Texts          Texts
}

// Orchestrator implements transport.Handler.
type Orchestrator struct {
	ledger   *ledger.Ledger
	history  conversation.Store
	gateway  Completer
	sender   transport.Sender
	persona  prompt.Persona
	opts     Options
	sessions *Sessions

	flood  FloodChecker
	events EventPublisher
}

var _ transport.Handler = (*Orchestrator)(nil)

func New(
	l *ledger.Ledger,
	history conversation.Store,
	gateway Completer,
	sender transport.Sender,
	persona prompt.Persona,
	opts Options,
) *Orchestrator {
	if opts.Texts.Greeting == "" {
		opts.Texts = DefaultTexts()
	}
	return &Orchestrator{
		ledger:   l,
		history:  history,
		gateway:  gateway,
		sender:   sender,
		persona:  persona,
		opts:     opts,
		sessions: NewSessions(),
	}
}

// WithFlood enables the per-minute flood check when FloodLimit is positive.
func (o *Orchestrator) WithFlood(f FloodChecker) *Orchestrator {
	o.flood = f
	return o
}

func (o *Orchestrator) WithEvents(p EventPublisher) *Orchestrator {
	o.events = p
	return o
}

// HandleMessage runs a turn for text, or queues it when a turn is already
// running for the user. Only the newest queued text is kept.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID int64, text string) {
	o.AdmitMessage(userID, text)(ctx)
}

// AdmitMessage claims the user's slot without blocking. The returned func runs
// the turn loop when the slot was free, or sends the busy notice when text
// was queued behind a running turn.
func (o *Orchestrator) AdmitMessage(userID int64, text string) func(ctx context.Context) {
	if !o.sessions.TryAcquire(userID, text) {
		metrics.TurnsTotal.WithLabelValues("coalesced").Inc()
		return func(ctx context.Context) {
			o.send(ctx, userID, o.opts.Texts.Busy, nil)
		}
	}
	return func(ctx context.Context) {
		o.runTurns(ctx, userID, text)
	}
}

// runTurns owns the user's slot until nothing is pending. The slot is
// released even if a panic escapes.
func (o *Orchestrator) runTurns(ctx context.Context, userID int64, text string) {
	released := false
	defer func() {
		if !released {
			o.sessions.Release(userID)
		}
	}()

	for {
		o.safeTurn(ctx, userID, text)

		next, ok := o.sessions.Next(userID)
		if !ok {
			released = true
			return
		}
		text = next
	}
}

// safeTurn answers with the apology when a turn panics, so a queued message
// still gets its turn.
func (o *Orchestrator) safeTurn(ctx context.Context, userID int64, text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn panicked", "user_id", userID, "panic", r)
			metrics.TurnsTotal.WithLabelValues("panic").Inc()
			o.send(ctx, userID, o.gateway.Replies().Apology, nil)
		}
	}()
	o.turn(ctx, userID, text)
}

func (o *Orchestrator) turn(ctx context.Context, userID int64, text string) {
	if err := o.ledger.Touch(ctx, userID); err != nil {
		slog.Error("touching account", "user_id", userID, "error", err)
	}

	if !o.allowFlood(ctx, userID) {
		metrics.TurnsTotal.WithLabelValues("flood").Inc()
		o.send(ctx, userID, o.opts.Texts.SlowDown, nil)
		return
	}

	if !o.gateway.Configured() {
		metrics.TurnsTotal.WithLabelValues("missing_key").Inc()
		o.send(ctx, userID, o.gateway.Replies().MissingKey, nil)
		return
	}

	if !o.allowTurn(ctx, userID) {
		metrics.TurnsTotal.WithLabelValues("quota_exhausted").Inc()
		o.publish(ctx, userID, inats.EventQuotaExhausted, nil)
		o.send(ctx, userID, o.opts.Texts.QuotaExhausted, paidMenu(o.opts.PaymentLink))
		return
	}

	turns, err := o.history.LastN(ctx, userID, o.opts.HistoryLen)
	if err != nil {
		slog.Error("loading history", "user_id", userID, "error", err)
		turns = nil
	}
	msgs := prompt.Compose(o.persona.Instructions, o.persona.Exemplars, prompt.FromTurns(turns), text, o.opts.PromptMaxChars)

	if err := o.sender.Typing(ctx, userID); err != nil {
		slog.Debug("sending typing indicator", "user_id", userID, "error", err)
	}

	start := time.Now()
	reply := o.gateway.Complete(ctx, msgs)

	if _, err := o.history.Append(ctx, userID, conversation.RoleUser, text); err != nil {
		slog.Error("storing user turn", "user_id", userID, "error", err)
	}
	if _, err := o.history.Append(ctx, userID, conversation.RoleAssistant, reply.Text); err != nil {
		slog.Error("storing assistant turn", "user_id", userID, "error", err)
	}

	o.send(ctx, userID, reply.Text, nil)

	metrics.TurnsTotal.WithLabelValues(string(reply.Kind)).Inc()
	o.publish(ctx, userID, inats.EventTurnCompleted, map[string]string{
		"kind":     string(reply.Kind),
		"model":    reply.Model,
		"attempts": strconv.Itoa(reply.Attempts),
	})
	slog.Debug("turn completed",
		"user_id", userID,
		"kind", reply.Kind,
		"model", reply.Model,
		"duration", time.Since(start),
	)
}

// allowTurn applies the quota. Storage errors let the turn through.
func (o *Orchestrator) allowTurn(ctx context.Context, userID int64) bool {
	acc, err := o.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		slog.Error("loading account", "user_id", userID, "error", err)
		return true
	}
	if acc.PaidActive(o.ledger.Now()) {
		return true
	}
	if acc.Remaining(o.ledger.FreeLimit()) <= 0 {
		return false
	}
	if err := o.ledger.ConsumeFree(ctx, userID); err != nil {
		slog.Error("consuming free turn", "user_id", userID, "error", err)
	}
	return true
}

func (o *Orchestrator) allowFlood(ctx context.Context, userID int64) bool {
	if o.flood == nil || o.opts.FloodLimit <= 0 {
		return true
	}
	ok, err := o.flood.Allow(ctx, userID, o.opts.FloodLimit)
	if err != nil {
		slog.Warn("flood check failed", "user_id", userID, "error", err)
		return true
	}
	return ok
}

func (o *Orchestrator) send(ctx context.Context, userID int64, text string, menu *transport.Menu) {
	if err := o.sender.Send(ctx, userID, text, menu); err != nil {
		slog.Error("delivering message", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, userID int64, eventType string, details map[string]string) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishBotEvent(ctx, inats.NewBotEvent(userID, eventType, details)); err != nil {
		slog.Warn("publishing bot event", "type", eventType, "user_id", userID, "error", err)
	}
}

// Run prunes idle sessions until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.sessions.Prune(sessionMaxIdle); n > 0 {
				slog.Debug("pruned idle sessions", "count", n)
			}
			metrics.ActiveSessions.Set(float64(o.sessions.Len()))
		}
	}
}

// Package completion calls the remote chat-completion service with retries,
// model fallback and a global concurrency bound.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/aiox-platform/mila/internal/metrics"
	"github.com/aiox-platform/mila/internal/prompt"
)

// ReplyKind tells the caller which path produced a reply.
type ReplyKind string

const (
	ReplyOK            ReplyKind = "ok"
	ReplyApology       ReplyKind = "apology"
	ReplyMisconfigured ReplyKind = "misconfigured"
	ReplyMissingKey    ReplyKind = "missing_key"
)

// Reply is always presentable to the end user.
type Reply struct {
	Text     string
	Kind     ReplyKind
	Model    string
	Attempts int
}

// Replies are the fixed texts used when no completion is available.
type Replies struct {
	Apology       string
	Misconfigured string
	MissingKey    string
}

func DefaultReplies() Replies {
	return Replies{
		Apology:       "У меня маленькая заминка с сетью 🙈 Попробуешь ответить ещё раз?",
		Misconfigured: "Кажется, у меня проблемы с настройками ИИ 🤔 Я уже позвала на помощь, попробуй чуть позже.",
		MissingKey:    "Мне не хватает ключа ИИ 🤔 Добавь переменную окружения DEEPSEEK_KEY и перезапусти.",
	}
}

type Config struct {
	Configured     bool
	Model          string
	FallbackModels []string
	SafeModel      string
	Timeout        time.Duration
	Concurrency    int
	MaxAttempts    int
	Backoff        time.Duration
}

type Gateway struct {
	client     Chatter
	cfg        Config
	candidates []string
	sem        *semaphore.Weighted
	replies    Replies
}

func NewGateway(client Chatter, cfg Config, replies Replies) *Gateway {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, m := range append([]string{cfg.Model}, cfg.FallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		candidates = append(candidates, m)
	}

	return &Gateway{
		client:     client,
		cfg:        cfg,
		candidates: candidates,
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		replies:    replies,
	}
}

// Configured reports whether an API key is available.
func (g *Gateway) Configured() bool { return g.cfg.Configured }

// Replies returns the fallback texts.
func (g *Gateway) Replies() Replies { return g.replies }

// Complete returns the model reply or a fallback text. It never fails.
func (g *Gateway) Complete(ctx context.Context, msgs []prompt.Message) (reply Reply) {
	if !g.cfg.Configured {
		return Reply{Text: g.replies.MissingKey, Kind: ReplyMissingKey}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("completion panic", "panic", r)
			reply = Reply{Text: g.replies.Apology, Kind: ReplyApology, Attempts: reply.Attempts}
		}
	}()

	attempts := 0
	for _, model := range g.candidates {
		out, n := g.tryModel(ctx, model, msgs)
		attempts += n

		switch out.Kind {
		case OutcomeOK:
			return Reply{Text: out.Text, Kind: ReplyOK, Model: model, Attempts: attempts}
		case OutcomeRetryable:
			slog.Warn("completion retries exhausted", "model", model, "attempts", n, "reason", out.Reason.String())
			return Reply{Text: g.replies.Apology, Kind: ReplyApology, Model: model, Attempts: attempts}
		}

		if out.Reason.Kind == ReasonUnauthorized {
			slog.Error("completion unauthorized", "model", model, "reason", out.Reason.String())
			return Reply{Text: g.replies.Misconfigured, Kind: ReplyMisconfigured, Model: model, Attempts: attempts}
		}
		slog.Warn("completion rejected, trying next model", "model", model, "reason", out.Reason.String())
	}

	// Every candidate refused the request: retry once with the smallest possible prompt.
	safe := g.cfg.SafeModel
	if safe == "" && len(g.candidates) > 0 {
		safe = g.candidates[0]
	}
	out := g.attempt(ctx, safe, prompt.Minimal(msgs))
	attempts++

	switch {
	case out.Kind == OutcomeOK:
		return Reply{Text: out.Text, Kind: ReplyOK, Model: safe, Attempts: attempts}
	case out.Reason.Kind == ReasonUnauthorized:
		slog.Error("completion unauthorized", "model", safe, "reason", out.Reason.String())
		return Reply{Text: g.replies.Misconfigured, Kind: ReplyMisconfigured, Model: safe, Attempts: attempts}
	default:
		slog.Warn("safe model failed", "model", safe, "reason", out.Reason.String())
		return Reply{Text: g.replies.Apology, Kind: ReplyApology, Model: safe, Attempts: attempts}
	}
}

var errRetry = errors.New("retryable completion outcome")

// tryModel retries one model with exponential backoff while outcomes stay retryable.
func (g *Gateway) tryModel(ctx context.Context, model string, msgs []prompt.Message) (Outcome, int) {
	var (
		last     Outcome
		attempts int
	)

	eb := backoff.NewExponentialBackOff()
	if g.cfg.Backoff > 0 {
		eb.InitialInterval = g.cfg.Backoff
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.cfg.MaxAttempts-1)), ctx)

	op := func() error {
		attempts++
		last = g.attempt(ctx, model, msgs)
		switch last.Kind {
		case OutcomeOK:
			return nil
		case OutcomeRetryable:
			slog.Debug("completion attempt failed", "model", model, "attempt", attempts, "reason", last.Reason.String())
			return errRetry
		default:
			return backoff.Permanent(fmt.Errorf("%s", last.Reason.Kind))
		}
	}
	_ = backoff.Retry(op, policy)
	return last, attempts
}

// attempt performs one bounded request holding a concurrency slot.
func (g *Gateway) attempt(ctx context.Context, model string, msgs []prompt.Message) Outcome {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Retryable(Reason{Kind: ReasonTransient, Detail: "waiting for slot: " + err.Error()})
	}
	defer g.sem.Release(1)

	metrics.CompletionInFlight.Inc()
	defer metrics.CompletionInFlight.Dec()

	actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out := g.client.Chat(actx, model, msgs)
	metrics.CompletionDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	metrics.CompletionRequestsTotal.WithLabelValues(model, out.metricLabel()).Inc()
	return out
}

// Package telegram adapts the Telegram Bot API to the transport contract.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aiox-platform/mila/internal/metrics"
	"github.com/aiox-platform/mila/internal/transport"
)

const (
	maxMessageRunes = 4000
	pollErrorDelay  = 3 * time.Second
)

// Bot long-polls for updates and delivers replies.
type Bot struct {
	api         *API
	handler     transport.Handler
	pollTimeout time.Duration

	wg sync.WaitGroup
}

func NewBot(api *API, pollTimeout time.Duration) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{api: api, pollTimeout: pollTimeout}
}

// SetHandler must be called before Run.
func (b *Bot) SetHandler(h transport.Handler) {
	b.handler = h
}

// Send delivers text, split into chunks Telegram accepts. The menu goes on the last chunk.
func (b *Bot) Send(ctx context.Context, userID int64, text string, menu *transport.Menu) error {
	chunks := splitMessage(text, maxMessageRunes)
	for i, chunk := range chunks {
		var markup *inlineKeyboardMarkup
		if i == len(chunks)-1 {
			markup = toMarkup(menu)
		}
		if err := b.api.sendMessage(ctx, userID, chunk, markup); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) Typing(ctx context.Context, userID int64) error {
	return b.api.sendChatAction(ctx, userID, "typing")
}

// Run polls until ctx is done, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	if b.handler == nil {
		return errors.New("telegram bot has no handler")
	}
	slog.Info("telegram polling started", "poll_timeout", b.pollTimeout)
	defer b.wg.Wait()

	var offset int64
	for {
		updates, next, err := b.api.getUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("telegram polling stopped")
				return nil
			}
			if isPollTimeoutError(err) {
				slog.Debug("telegram poll timeout", "error", err)
			} else {
				slog.Warn("telegram getUpdates failed", "error", err)
			}
			select {
			case <-ctx.Done():
				slog.Info("telegram polling stopped")
				return nil
			case <-time.After(pollErrorDelay):
			}
			continue
		}
		offset = next

		// Routing runs here, in update order, so a user's messages are admitted
		// in the order they were sent. Only the work runs concurrently.
		for _, u := range updates {
			job := b.route(u)
			if job == nil {
				continue
			}
			b.wg.Add(1)
			go func(id int64) {
				defer b.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						slog.Error("update handler panic", "update_id", id, "panic", r)
					}
				}()
				job(ctx)
			}(u.UpdateID)
		}
	}
}

// route filters an update and returns the work it needs, or nil.
func (b *Bot) route(u update) func(ctx context.Context) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return nil
		}
		metrics.TelegramUpdatesTotal.WithLabelValues("callback").Inc()
		return func(ctx context.Context) {
			toast := b.handler.HandleAction(ctx, q.From.ID, q.Data)
			if err := b.api.answerCallbackQuery(ctx, q.ID, toast); err != nil {
				slog.Warn("answering callback query", "error", err, "user_id", q.From.ID)
			}
		}

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.From.IsBot || m.Chat == nil || m.Chat.Type != "private" {
			return nil
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return nil
		}
		userID := m.From.ID
		if name, args, ok := parseCommand(text); ok {
			metrics.TelegramUpdatesTotal.WithLabelValues("command").Inc()
			return func(ctx context.Context) {
				b.handler.HandleCommand(ctx, userID, name, args)
			}
		}
		metrics.TelegramUpdatesTotal.WithLabelValues("message").Inc()
		return b.handler.AdmitMessage(userID, text)
	}
	return nil
}

// parseCommand splits "/name@bot args" into its parts.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// splitMessage cuts text into chunks of at most limit runes, preferring newline boundaries.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func toMarkup(menu *transport.Menu) *inlineKeyboardMarkup {
	if menu == nil || len(menu.Rows) == 0 {
		return nil
	}
	kb := make([][]inlineKeyboardButton, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		r := make([]inlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			r = append(r, inlineKeyboardButton{Text: btn.Label, CallbackData: btn.Action, URL: btn.URL})
		}
		kb = append(kb, r)
	}
	return &inlineKeyboardMarkup{InlineKeyboard: kb}
}

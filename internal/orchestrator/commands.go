package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/transport"
)

// HandleCommand serves /name args.
func (o *Orchestrator) HandleCommand(ctx context.Context, userID int64, name, args string) {
	switch name {
	case "start":
		if _, err := o.ledger.GetOrCreate(ctx, userID); err != nil {
			slog.Error("creating account", "user_id", userID, "error", err)
		}
		o.send(ctx, userID, o.opts.Texts.Greeting, MainMenu())
	case "profile":
		o.sendProfile(ctx, userID)
	case "reset_quota", "reset_free":
		target, ok := o.commandTarget(ctx, userID, args)
		if !ok {
			return
		}
		if err := o.ResetQuota(ctx, target); err != nil {
			slog.Error("resetting quota", "user_id", target, "error", err)
			o.send(ctx, userID, o.gateway.Replies().Apology, nil)
			return
		}
		text := o.opts.Texts.QuotaReset
		if target != userID {
			text = fmt.Sprintf(o.opts.Texts.QuotaResetFor, target)
		}
		o.send(ctx, userID, text, nil)
	case "grant_paid", "grant_vip":
		target, ok := o.commandTarget(ctx, userID, args)
		if !ok {
			return
		}
		until, err := o.GrantPaid(ctx, target, 0)
		if err != nil {
			slog.Error("granting paid access", "user_id", target, "error", err)
			o.send(ctx, userID, o.gateway.Replies().Apology, nil)
			return
		}
		text := fmt.Sprintf(o.opts.Texts.PaidGranted, days(o.ledger.PaidDuration()))
		if target != userID {
			text = fmt.Sprintf(o.opts.Texts.PaidGrantedTo, target, formatDate(until))
		}
		o.send(ctx, userID, text, nil)
	default:
		o.send(ctx, userID, o.opts.Texts.Help, MainMenu())
	}
}

// HandleAction serves inline button presses and returns a toast.
func (o *Orchestrator) HandleAction(ctx context.Context, userID int64, action string) string {
	switch action {
	case ActionOpenChat:
		o.send(ctx, userID, o.opts.Texts.OpenChat, nil)
		return o.opts.Texts.OpenChatToast
	case ActionShowPaidOffer:
		o.send(ctx, userID, o.opts.Texts.PaidOffer, paidMenu(o.opts.PaymentLink))
		return ""
	case ActionConfirmPaid:
		if _, err := o.GrantPaid(ctx, userID, 0); err != nil {
			slog.Error("granting paid access", "user_id", userID, "error", err)
			o.send(ctx, userID, o.gateway.Replies().Apology, nil)
			return ""
		}
		n := days(o.ledger.PaidDuration())
		o.send(ctx, userID, fmt.Sprintf(o.opts.Texts.PaidGranted, n), nil)
		return fmt.Sprintf(o.opts.Texts.PaidToast, n)
	case ActionClearHistory:
		if err := o.ClearHistory(ctx, userID); err != nil {
			slog.Error("clearing history", "user_id", userID, "error", err)
			o.send(ctx, userID, o.gateway.Replies().Apology, nil)
			return ""
		}
		o.send(ctx, userID, o.opts.Texts.HistoryCleared, MainMenu())
		return o.opts.Texts.HistoryToast
	case ActionShowProfile:
		o.sendProfile(ctx, userID)
		return ""
	case ActionGift:
		if len(o.persona.Gifts) == 0 {
			return ""
		}
		o.send(ctx, userID, o.persona.Gifts[rand.IntN(len(o.persona.Gifts))], nil)
		return o.opts.Texts.GiftToast
	default:
		slog.Debug("unknown action", "user_id", userID, "action", action)
		return ""
	}
}

// commandTarget resolves who an account command applies to. Listed admins may
// name another user; when admins are configured nobody else may run the command.
func (o *Orchestrator) commandTarget(ctx context.Context, userID int64, args string) (int64, bool) {
	admin := o.isAdmin(userID)
	if len(o.opts.AdminIDs) > 0 && !admin {
		o.send(ctx, userID, o.opts.Texts.AdminOnly, nil)
		return 0, false
	}

	arg := strings.TrimSpace(args)
	if arg == "" || !admin {
		return userID, true
	}
	target, err := strconv.ParseInt(strings.Fields(arg)[0], 10, 64)
	if err != nil || target <= 0 {
		o.send(ctx, userID, o.opts.Texts.BadUserID, nil)
		return 0, false
	}
	return target, true
}

func (o *Orchestrator) isAdmin(userID int64) bool {
	return slices.Contains(o.opts.AdminIDs, userID)
}

func (o *Orchestrator) sendProfile(ctx context.Context, userID int64) {
	s, err := o.Summary(ctx, userID)
	if err != nil {
		slog.Error("loading profile", "user_id", userID, "error", err)
		o.send(ctx, userID, o.gateway.Replies().Apology, nil)
		return
	}

	text := o.opts.Texts.profile(userID, s.PaidUntil, s.FreeUsed, s.FreeLimit, s.FreeRemaining, o.opts.HistoryLen, s.HistorySize)
	var menu *transport.Menu
	if !s.PaidActive {
		menu = paidMenu(o.opts.PaymentLink)
	}
	o.send(ctx, userID, text, menu)
}

// AccountSummary is the profile of one user.
type AccountSummary struct {
	UserID        int64      `json:"user_id"`
	FreeUsed      int        `json:"free_used"`
	FreeLimit     int        `json:"free_limit"`
	FreeRemaining int        `json:"free_remaining"`
	PaidActive    bool       `json:"paid_active"`
	PaidUntil     *time.Time `json:"paid_until,omitempty"`
	HistorySize   int        `json:"history_size"`
	// MinuteUsage is set only when the flood limiter is enabled.
	MinuteUsage *int `json:"messages_last_minute,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastActiveAt  time.Time  `json:"last_active_at"`
}

// Summary loads the account, creating it when missing. A history count
// failure is logged and reported as zero.
func (o *Orchestrator) Summary(ctx context.Context, userID int64) (AccountSummary, error) {
	acc, err := o.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return AccountSummary{}, fmt.Errorf("loading account: %w", err)
	}

	s := AccountSummary{
		UserID:        acc.UserID,
		FreeUsed:      acc.FreeUsed,
		FreeLimit:     o.ledger.FreeLimit(),
		FreeRemaining: acc.Remaining(o.ledger.FreeLimit()),
		PaidActive:    acc.PaidActive(o.ledger.Now()),
		CreatedAt:     acc.CreatedAt,
		LastActiveAt:  acc.LastActiveAt,
	}
	if s.PaidActive {
		until := acc.PaidUntil
		s.PaidUntil = &until
	}

	n, err := o.history.Count(ctx, userID)
	if err != nil {
		slog.Warn("counting history", "user_id", userID, "error", err)
	}
	s.HistorySize = n

	if o.flood != nil && o.opts.FloodLimit > 0 {
		used, err := o.flood.MinuteUsage(ctx, userID)
		if err != nil {
			slog.Warn("reading flood usage", "user_id", userID, "error", err)
		} else {
			s.MinuteUsage = &used
		}
	}
	return s, nil
}

// GrantPaid grants paid access for d, or the default duration when d is zero.
func (o *Orchestrator) GrantPaid(ctx context.Context, userID int64, d time.Duration) (time.Time, error) {
	until, err := o.ledger.GrantPaid(ctx, userID, d)
	if err != nil {
		return time.Time{}, err
	}
	o.publish(ctx, userID, inats.EventPaidGranted, map[string]string{"until": until.Format(time.RFC3339)})
	return until, nil
}

func (o *Orchestrator) ResetQuota(ctx context.Context, userID int64) error {
	if err := o.ledger.ResetFree(ctx, userID); err != nil {
		return err
	}
	o.publish(ctx, userID, inats.EventQuotaReset, nil)
	return nil
}

func (o *Orchestrator) ClearHistory(ctx context.Context, userID int64) error {
	if err := o.history.Clear(ctx, userID); err != nil {
		return err
	}
	o.publish(ctx, userID, inats.EventHistoryCleared, nil)
	return nil
}

// Notify delivers an operator message to the user.
func (o *Orchestrator) Notify(ctx context.Context, userID int64, text string) error {
	return o.sender.Send(ctx, userID, text, nil)
}

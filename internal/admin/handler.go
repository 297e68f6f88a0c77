// Package admin serves the operator HTTP API over accounts.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/mila/internal/api"
	"github.com/aiox-platform/mila/internal/audit"
	"github.com/aiox-platform/mila/internal/auth"
	"github.com/aiox-platform/mila/internal/orchestrator"
)

// Accounts is implemented by the orchestrator.
type Accounts interface {
	Summary(ctx context.Context, userID int64) (orchestrator.AccountSummary, error)
	GrantPaid(ctx context.Context, userID int64, d time.Duration) (time.Time, error)
	ResetQuota(ctx context.Context, userID int64) error
	ClearHistory(ctx context.Context, userID int64) error
	Notify(ctx context.Context, userID int64, text string) error
}

type EventLister interface {
	ListByUser(ctx context.Context, userID int64, params audit.ListParams) ([]audit.Event, int64, error)
}

type GrantPaidRequest struct {
	Days int `json:"days" validate:"omitempty,min=1,max=3650"`
}

type GrantPaidResponse struct {
	UserID    int64     `json:"user_id"`
	PaidUntil time.Time `json:"paid_until"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type Handler struct {
	accounts Accounts
	events   EventLister
	validate *validator.Validate
}

// NewHandler creates the admin handler. events may be nil when no audit store is configured.
func NewHandler(accounts Accounts, events EventLister) *Handler {
	return &Handler{
		accounts: accounts,
		events:   events,
		validate: validator.New(),
	}
}

// Handlers returns the admin entries of an api.HandlerSet.
func (h *Handler) Handlers(authMW func(http.Handler) http.Handler) api.HandlerSet {
	return api.HandlerSet{
		AdminAuth:    authMW,
		GetAccount:   h.GetAccount,
		GrantPaid:    h.GrantPaid,
		ResetQuota:   h.ResetQuota,
		ClearHistory: h.ClearHistory,
		SendMessage:  h.SendMessage,
		ListEvents:   h.ListEvents,
	}
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.accounts.Summary(r.Context(), userID)
	if err != nil {
		slog.Error("admin: loading account", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, summary)
}

func (h *Handler) GrantPaid(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req GrantPaidRequest
	// an empty body grants the default duration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	until, err := h.accounts.GrantPaid(r.Context(), userID, time.Duration(req.Days)*24*time.Hour)
	if err != nil {
		slog.Error("admin: granting paid access", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("admin: paid access granted", "user_id", userID, "until", until, "by", operator(r))
	api.JSON(w, http.StatusOK, GrantPaidResponse{UserID: userID, PaidUntil: until})
}

func (h *Handler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.accounts.ResetQuota(r.Context(), userID); err != nil {
		slog.Error("admin: resetting quota", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("admin: quota reset", "user_id", userID, "by", operator(r))
	api.JSONMessage(w, http.StatusOK, "quota reset")
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.accounts.ClearHistory(r.Context(), userID); err != nil {
		slog.Error("admin: clearing history", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("admin: history cleared", "user_id", userID, "by", operator(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if err := h.accounts.Notify(r.Context(), userID, req.Text); err != nil {
		var blocked interface{ Blocked() bool }
		if errors.As(err, &blocked) && blocked.Blocked() {
			api.HandleError(w, api.ErrDeliveryBlocked)
			return
		}
		slog.Error("admin: sending message", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrBadGateway)
		return
	}

	api.JSONMessage(w, http.StatusAccepted, "message sent")
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		api.HandleError(w, api.ErrEventsDisabled)
		return
	}

	params := parseListParams(r)
	events, total, err := h.events.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("admin: listing events", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, events, total, params.Page, params.PageSize)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		api.HandleError(w, api.ErrInvalidUserID)
		return 0, false
	}
	return id, true
}

func parseListParams(r *http.Request) audit.ListParams {
	params := audit.DefaultListParams()
	q := r.URL.Query()

	if et := q.Get("event_type"); et != "" {
		params.EventType = et
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 && size <= 100 {
		params.PageSize = size
	}
	return params
}

func operator(r *http.Request) string {
	if claims := auth.GetAdminClaims(r.Context()); claims != nil {
		return claims.Subject
	}
	return "unknown"
}

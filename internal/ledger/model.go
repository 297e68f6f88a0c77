package ledger

import (
	"context"
	"time"
)

// Account is the per-user quota and paid-access record.
type Account struct {
	UserID       int64     `json:"user_id"`
	FreeUsed     int       `json:"free_used"`
	PaidUntil    time.Time `json:"paid_until,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// PaidActive reports whether paid access is still running at now.
func (a Account) PaidActive(now time.Time) bool {
	return !a.PaidUntil.IsZero() && a.PaidUntil.After(now)
}

// Remaining returns the free messages left under limit, never negative.
func (a Account) Remaining(limit int) int {
	return max(0, limit-a.FreeUsed)
}

// Store persists accounts. Every mutator creates the account when it does not exist yet,
// so no operation fails for an unknown user.
type Store interface {
	GetOrCreate(ctx context.Context, userID int64, now time.Time) (*Account, error)
	IncrementFree(ctx context.Context, userID int64, now time.Time) error
	ResetFree(ctx context.Context, userID int64, now time.Time) error
	SetPaidUntil(ctx context.Context, userID int64, until, now time.Time) error
	Touch(ctx context.Context, userID int64, at time.Time) error
	ListIdle(ctx context.Context, before time.Time) ([]Account, error)
}

package ledger

import (
	"context"
	"fmt"
	"time"
)

// Ledger applies the free quota and paid-access rules on top of a Store.
type Ledger struct {
	store        Store
	freeLimit    int
	paidDuration time.Duration
	now          func() time.Time
}

// New creates a Ledger. freeLimit is the number of free turns per user and
// paidDuration the default length of a paid grant.
func New(store Store, freeLimit int, paidDuration time.Duration) *Ledger {
	return &Ledger{
		store:        store,
		freeLimit:    freeLimit,
		paidDuration: paidDuration,
		now:          time.Now,
	}
}

// WithClock replaces the time source; used by tests and the sweeper scenarios.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) FreeLimit() int { return l.freeLimit }

func (l *Ledger) PaidDuration() time.Duration { return l.paidDuration }

func (l *Ledger) Now() time.Time { return l.now() }

func (l *Ledger) GetOrCreate(ctx context.Context, userID int64) (*Account, error) {
	return l.store.GetOrCreate(ctx, userID, l.now().UTC())
}

// ConsumeFree records one free turn. The caller checks RemainingFree first.
func (l *Ledger) ConsumeFree(ctx context.Context, userID int64) error {
	return l.store.IncrementFree(ctx, userID, l.now().UTC())
}

func (l *Ledger) RemainingFree(ctx context.Context, userID int64) (int, error) {
	acc, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Remaining(l.freeLimit), nil
}

// IsPaidActive is evaluated against the current time on every call.
func (l *Ledger) IsPaidActive(ctx context.Context, userID int64) (bool, error) {
	acc, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return acc.PaidActive(l.now()), nil
}

// GrantPaid sets paid access to expire d from now, replacing any earlier expiry.
// A non-positive d uses the configured paid duration.
func (l *Ledger) GrantPaid(ctx context.Context, userID int64, d time.Duration) (time.Time, error) {
	if d <= 0 {
		d = l.paidDuration
	}
	now := l.now().UTC()
	until := now.Add(d)
	if err := l.store.SetPaidUntil(ctx, userID, until, now); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (l *Ledger) ResetFree(ctx context.Context, userID int64) error {
	return l.store.ResetFree(ctx, userID, l.now().UTC())
}

// Touch refreshes the last activity timestamp.
func (l *Ledger) Touch(ctx context.Context, userID int64) error {
	return l.store.Touch(ctx, userID, l.now().UTC())
}

// Idle returns accounts inactive for longer than threshold.
func (l *Ledger) Idle(ctx context.Context, threshold time.Duration) ([]Account, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("idle threshold must be positive, got %s", threshold)
	}
	return l.store.ListIdle(ctx, l.now().UTC().Add(-threshold))
}

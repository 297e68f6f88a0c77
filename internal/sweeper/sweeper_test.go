package sweeper

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/aiox-platform/mila/internal/ledger"
	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/transport"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    map[int64][]string
	blocked map[int64]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int64][]string), blocked: make(map[int64]bool)}
}

func (s *fakeSender) Send(_ context.Context, userID int64, text string, _ *transport.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked[userID] {
		return errors.New("telegram http 403: Forbidden: bot was blocked by the user")
	}
	s.sent[userID] = append(s.sent[userID], text)
	return nil
}

func (s *fakeSender) Typing(context.Context, int64) error { return nil }

type fakeEvents struct {
	events []inats.BotEvent
}

func (e *fakeEvents) PublishBotEvent(_ context.Context, ev inats.BotEvent) error {
	e.events = append(e.events, ev)
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func newTestLedger(t *testing.T) (*ledger.Ledger, *clock) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "mila.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := ledger.NewBoltStore(db)
	require.NoError(t, err)

	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return ledger.New(store, 10, 30*24*time.Hour).WithClock(c.Now), c
}

var reminders = []string{"Я соскучилась 💕", "Как прошёл твой день? 🌸"}

func TestSweep_RemindsOnlyIdleAccounts(t *testing.T) {
	l, c := newTestLedger(t)
	ctx := context.Background()

	// user 1 last active 3h ago, user 2 one hour ago
	require.NoError(t, l.Touch(ctx, 1))
	c.t = c.t.Add(2 * time.Hour)
	require.NoError(t, l.Touch(ctx, 2))
	c.t = c.t.Add(time.Hour)

	sender := newFakeSender()
	events := &fakeEvents{}
	s := New(l, sender, reminders, nil, Config{Threshold: 2 * time.Hour}).WithEvents(events)

	assert.Equal(t, 1, s.Sweep(ctx))
	require.Len(t, sender.sent[1], 1)
	assert.Contains(t, reminders, sender.sent[1][0])
	assert.Empty(t, sender.sent[2])

	require.Len(t, events.events, 1)
	assert.Equal(t, inats.EventReminderSent, events.events[0].Type)
	assert.Equal(t, int64(1), events.events[0].UserID)

	acc, err := l.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, acc.LastActiveAt.Equal(c.t))

	// refreshed accounts are not reminded again on the next scan
	assert.Zero(t, s.Sweep(ctx))
}

func TestSweep_FailedDeliveryStillRefreshes(t *testing.T) {
	l, c := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Touch(ctx, 1))
	require.NoError(t, l.Touch(ctx, 2))
	c.t = c.t.Add(3 * time.Hour)

	sender := newFakeSender()
	sender.blocked[1] = true
	s := New(l, sender, reminders, nil, Config{Threshold: 2 * time.Hour})

	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Len(t, sender.sent[2], 1)

	acc, err := l.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, acc.LastActiveAt.Equal(c.t))
}

func TestSweep_PicksRandomReminder(t *testing.T) {
	l, c := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Touch(ctx, 1))
	c.t = c.t.Add(3 * time.Hour)

	sender := newFakeSender()
	s := New(l, sender, reminders, nil, Config{Threshold: 2 * time.Hour})
	s.pick = func(n int) int { return n - 1 }

	s.Sweep(ctx)
	assert.Equal(t, []string{reminders[1]}, sender.sent[1])
}

func TestSweep_NoReminders(t *testing.T) {
	l, c := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Touch(ctx, 1))
	c.t = c.t.Add(3 * time.Hour)

	s := New(l, newFakeSender(), nil, nil, Config{Threshold: 2 * time.Hour})
	assert.Zero(t, s.Sweep(ctx))
}

func TestRun_SweepsAfterDelayAndStops(t *testing.T) {
	l, c := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Touch(ctx, 1))
	c.t = c.t.Add(3 * time.Hour)

	sender := newFakeSender()
	s := New(l, sender, reminders, nil, Config{Threshold: 2 * time.Hour, Interval: time.Hour, Delay: 10 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent[1]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

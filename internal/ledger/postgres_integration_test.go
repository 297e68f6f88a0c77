//go:build integration

package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mila/internal/testutil"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := testutil.Postgres(t)
	s := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	acc, err := s.GetOrCreate(ctx, 100, now)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.FreeUsed)
	assert.True(t, acc.PaidUntil.IsZero())

	require.NoError(t, s.IncrementFree(ctx, 100, now))
	require.NoError(t, s.IncrementFree(ctx, 100, now))
	acc, err = s.GetOrCreate(ctx, 100, now)
	require.NoError(t, err)
	assert.Equal(t, 2, acc.FreeUsed)

	require.NoError(t, s.ResetFree(ctx, 100, now))
	until := now.Add(24 * time.Hour)
	require.NoError(t, s.SetPaidUntil(ctx, 100, until, now))
	acc, err = s.GetOrCreate(ctx, 100, now)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.FreeUsed)
	assert.True(t, acc.PaidUntil.Equal(until))
}

func TestPostgresStore_ConcurrentIncrements(t *testing.T) {
	pool := testutil.Postgres(t)
	s := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementFree(ctx, 200, now))
		}()
	}
	wg.Wait()

	acc, err := s.GetOrCreate(ctx, 200, now)
	require.NoError(t, err)
	assert.Equal(t, 25, acc.FreeUsed)
}

func TestPostgresStore_ListIdle(t *testing.T) {
	pool := testutil.Postgres(t)
	s := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Touch(ctx, 1, now.Add(-3*time.Hour)))
	require.NoError(t, s.Touch(ctx, 2, now))

	idle, err := s.ListIdle(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, int64(1), idle[0].UserID)
}

package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "accounts.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewBoltStore(db)
	require.NoError(t, err)
	return s
}

func TestBoltStore_ConcurrentIncrements(t *testing.T) {
	s := newBoltStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementFree(ctx, 5, now))
		}()
	}
	wg.Wait()

	acc, err := s.GetOrCreate(ctx, 5, now)
	require.NoError(t, err)
	assert.Equal(t, 20, acc.FreeUsed)
}

func TestBoltStore_GetOrCreateIsStable(t *testing.T) {
	s := newBoltStore(t)
	ctx := context.Background()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := s.GetOrCreate(ctx, 5, first)
	require.NoError(t, err)
	b, err := s.GetOrCreate(ctx, 5, first.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, a.CreatedAt.Equal(b.CreatedAt))
	assert.True(t, b.LastActiveAt.Equal(first))
}

func TestBoltStore_ListIdleSkipsMalformed(t *testing.T) {
	s := newBoltStore(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Touch(ctx, 1, old))
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).Put(accountKey(2), []byte("{not json"))
	}))

	idle, err := s.ListIdle(ctx, old.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, int64(1), idle[0].UserID)
}

func TestBoltStore_SetPaidUntilSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(72 * time.Hour)

	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	s, err := NewBoltStore(db)
	require.NoError(t, err)
	require.NoError(t, s.SetPaidUntil(ctx, 5, until, now))
	require.NoError(t, db.Close())

	db, err = bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err = NewBoltStore(db)
	require.NoError(t, err)

	acc, err := s.GetOrCreate(ctx, 5, now)
	require.NoError(t, err)
	assert.True(t, acc.PaidUntil.Equal(until))
}

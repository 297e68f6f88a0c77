package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

// runStoreContract checks behavior every backend shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("AppendAndLastN", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Append(ctx, 1, RoleUser, "привет")
		require.NoError(t, err)
		_, err = s.Append(ctx, 1, RoleAssistant, "Привет! Как ты?")
		require.NoError(t, err)

		turns, err := s.LastN(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, RoleUser, turns[0].Role)
		assert.Equal(t, "привет", turns[0].Content)
		assert.Equal(t, RoleAssistant, turns[1].Role)
		assert.Less(t, turns[0].Seq, turns[1].Seq)
		assert.False(t, turns[0].CreatedAt.IsZero())
	})

	t.Run("LastNReturnsMostRecentOldestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 6; i++ {
			_, err := s.Append(ctx, 1, RoleUser, fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}

		turns, err := s.LastN(ctx, 1, 3)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		assert.Equal(t, "m3", turns[0].Content)
		assert.Equal(t, "m4", turns[1].Content)
		assert.Equal(t, "m5", turns[2].Content)
	})

	t.Run("EmptyCases", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		turns, err := s.LastN(ctx, 404, 5)
		require.NoError(t, err)
		assert.Empty(t, turns)

		_, err = s.Append(ctx, 1, RoleUser, "hi")
		require.NoError(t, err)
		turns, err = s.LastN(ctx, 1, 0)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("UsersAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Append(ctx, 1, RoleUser, "one")
		require.NoError(t, err)
		_, err = s.Append(ctx, 2, RoleUser, "two")
		require.NoError(t, err)

		turns, err := s.LastN(ctx, 2, 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "two", turns[0].Content)
	})

	t.Run("ClearThenAppend", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		before, err := s.Append(ctx, 1, RoleUser, "old")
		require.NoError(t, err)
		require.NoError(t, s.Clear(ctx, 1))

		turns, err := s.LastN(ctx, 1, 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
		n, err := s.Count(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, n)

		after, err := s.Append(ctx, 1, RoleUser, "new")
		require.NoError(t, err)
		assert.Greater(t, after.Seq, before.Seq)

		turns, err = s.LastN(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "new", turns[0].Content)
	})

	t.Run("ClearUnknownUser", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Clear(context.Background(), 404))
	})

	t.Run("Count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, err := s.Append(ctx, 1, RoleAssistant, "x")
			require.NoError(t, err)
		}
		n, err := s.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Append(context.Background(), 1, Role("system"), "x")
		assert.Error(t, err)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Append(ctx, 1, RoleUser, fmt.Sprintf("c%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		turns, err := s.LastN(ctx, 1, 20)
		require.NoError(t, err)
		require.Len(t, turns, 10)
		seen := make(map[int64]bool)
		for _, turn := range turns {
			assert.False(t, seen[turn.Seq], "duplicate seq %d", turn.Seq)
			seen[turn.Seq] = true
		}
	})
}

func newTestBoltStore(t *testing.T) Store {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "turns.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewBoltStore(db)
	require.NoError(t, err)
	return s
}

func TestBoltStore(t *testing.T) {
	runStoreContract(t, newTestBoltStore)
}

func TestBoltStore_SkipsMalformedEntries(t *testing.T) {
	s := newTestBoltStore(t).(*BoltStore)
	ctx := context.Background()

	_, err := s.Append(ctx, 1, RoleUser, "good")
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(turnsBucket).Bucket(userKey(1)).Put(seqKey(999), []byte("{broken"))
	}))

	turns, err := s.LastN(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good", turns[0].Content)
}

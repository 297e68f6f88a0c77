//go:build integration

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/aiox-platform/mila/internal/nats"
	"github.com/aiox-platform/mila/internal/testutil"
)

func TestRepository_InsertAndList(t *testing.T) {
	repo := NewRepository(testutil.Postgres(t))
	ctx := context.Background()

	first := FromBotEvent(inats.NewBotEvent(42, inats.EventTurnCompleted, nil))
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, FromBotEvent(inats.NewBotEvent(42, inats.EventPaidGranted, nil))))
	require.NoError(t, repo.Insert(ctx, FromBotEvent(inats.NewBotEvent(43, inats.EventTurnCompleted, nil))))

	// Redelivery of the same event is a no-op
	require.NoError(t, repo.Insert(ctx, first))

	events, total, err := repo.ListByUser(ctx, 42, DefaultListParams())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, events, 2)

	events, total, err = repo.ListByUser(ctx, 42, ListParams{EventType: inats.EventPaidGranted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, "paid_granted", events[0].EventType)
}

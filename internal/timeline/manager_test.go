package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerWarmViewMerging(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	page := []*models.Message{
		msgAt(3, 1, base.Add(2*time.Second)),
		msgAt(2, 1, base.Add(time.Second)),
		msgAt(1, 1, base),
	}

	var fetches int
	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		fetches++
		if channelID != 1 {
			return nil, false, nil
		}
		return page, false, nil
	}

	m := NewManager(fetch)
	ctx := context.Background()

	first, hasMore, err := m.Latest(ctx, 1, 50)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.False(t, hasMore)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, uint(3), first[0].ID, "newest first")

	t.Run("realtime insert lands without a refetch", func(t *testing.T) {
		m.ApplyInsert(1, msgAt(9, 1, base.Add(time.Hour)))

		got, _, err := m.Latest(ctx, 1, 50)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, uint(9), got[0].ID)
		assert.Equal(t, 1, fetches, "warm view must answer without the store")
	})

	t.Run("update and delete reshape the view", func(t *testing.T) {
		content := "edited"
		m.ApplyUpdate(1, Update{ID: 9, Content: &content})
		m.ApplyDelete(1, 1)

		got, _, err := m.Latest(ctx, 1, 50)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "edited", got[0].Content)
		for _, msg := range got {
			assert.NotEqual(t, uint(1), msg.ID)
		}
	})

	t.Run("events for a cold channel are dropped", func(t *testing.T) {
		m.ApplyInsert(7, msgAt(1, 7, base))

		got, _, err := m.Latest(ctx, 7, 50)
		require.NoError(t, err)
		assert.Empty(t, got, "the cold channel must load from the store, not the stray event")
	})
}

func TestManagerLatestLimit(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		return []*models.Message{
			msgAt(3, 1, base.Add(2*time.Second)),
			msgAt(2, 1, base.Add(time.Second)),
			msgAt(1, 1, base),
		}, false, nil
	}

	m := NewManager(fetch)
	got, hasMore, err := m.Latest(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(3), got[0].ID)
	assert.Equal(t, uint(2), got[1].ID)
	assert.True(t, hasMore, "truncated view must report more history")
}

func TestManagerReturnsCopies(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		return []*models.Message{msgAt(1, 1, base)}, false, nil
	}

	m := NewManager(fetch)
	ctx := context.Background()

	got, _, err := m.Latest(ctx, 1, 50)
	require.NoError(t, err)
	got[0].Content = "caller scribbles"

	again, _, err := m.Latest(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, "m1", again[0].Content, "view entries must not alias returned messages")
}

func TestManagerFailedFirstLoadRetries(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var fetches int
	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		fetches++
		if fetches == 1 {
			return nil, false, errors.New("store down")
		}
		return []*models.Message{msgAt(1, 1, base)}, false, nil
	}

	m := NewManager(fetch)
	ctx := context.Background()

	_, _, err := m.Latest(ctx, 1, 50)
	require.Error(t, err)

	got, _, err := m.Latest(ctx, 1, 50)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, fetches)
}

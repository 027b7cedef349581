package timeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"commons/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id uint, channelID uint, at time.Time) *models.Message {
	return &models.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  1,
		Content:   fmt.Sprintf("m%d", id),
		CreatedAt: at,
	}
}

func assertOrdered(t *testing.T, v *View) {
	t.Helper()
	messages := v.Messages()
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		ok := prev.CreatedAt.Before(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
		assert.True(t, ok, "view out of order at index %d", i)
	}
}

func TestViewOrderingUnderArrivalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := NewView(1)

	// Deliver in scrambled network order; the rendered list must still be
	// sorted by created_at.
	arrival := []int{3, 0, 4, 1, 2}
	for _, i := range arrival {
		v.ApplyInsert(msgAt(uint(i+1), 1, base.Add(time.Duration(i)*time.Second)))
	}

	messages := v.Messages()
	require.Len(t, messages, 5)
	assertOrdered(t, v)
	assert.Equal(t, uint(1), messages[0].ID)
	assert.Equal(t, uint(5), messages[4].ID)
}

func TestViewDedupeAndWrongChannel(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := NewView(1)

	msg := msgAt(1, 1, base)
	assert.True(t, v.ApplyInsert(msg))
	assert.False(t, v.ApplyInsert(msg), "replayed insert must be ignored")
	assert.Equal(t, 1, v.Len())

	assert.False(t, v.ApplyInsert(msgAt(2, 99, base)), "other channel's insert must be ignored")
	assert.Equal(t, 1, v.Len())
}

func TestViewTimestampTieBreak(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := NewView(1)

	v.ApplyInsert(msgAt(7, 1, at))
	v.ApplyInsert(msgAt(3, 1, at))
	v.ApplyInsert(msgAt(5, 1, at))

	messages := v.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, uint(3), messages[0].ID)
	assert.Equal(t, uint(5), messages[1].ID)
	assert.Equal(t, uint(7), messages[2].ID)
}

func TestViewUpdateMerging(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := NewView(1)
	msg := msgAt(1, 1, base)
	msg.Reactions = models.ReactionList{{Emoji: "👍", UserIDs: []uint{4}}}
	v.ApplyInsert(msg)

	t.Run("partial update keeps absent fields", func(t *testing.T) {
		content := "edited"
		edited := base.Add(time.Minute)
		assert.True(t, v.ApplyUpdate(Update{ID: 1, Content: &content, EditedAt: &edited}))

		got := v.Messages()[0]
		assert.Equal(t, "edited", got.Content)
		require.NotNil(t, got.EditedAt)
		// Reactions were not in the payload and must survive.
		require.Len(t, got.Reactions, 1)
		assert.Equal(t, "👍", got.Reactions[0].Emoji)
	})

	t.Run("reaction update replaces the list", func(t *testing.T) {
		reactions := models.ReactionList{}
		assert.True(t, v.ApplyUpdate(Update{ID: 1, Reactions: &reactions}))
		assert.Empty(t, v.Messages()[0].Reactions)
	})

	t.Run("deletion removes from visible set", func(t *testing.T) {
		assert.True(t, v.ApplyUpdate(Update{ID: 1, Deleted: true}))
		assert.Zero(t, v.Len())
	})

	t.Run("update for unknown id is dropped", func(t *testing.T) {
		content := "ghost"
		assert.False(t, v.ApplyUpdate(Update{ID: 42, Content: &content}))
	})
}

func TestViewReset(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := NewView(1)
	for i := 0; i < 3; i++ {
		v.ApplyInsert(msgAt(uint(i+1), 1, base.Add(time.Duration(i)*time.Second)))
	}
	v.Reset()
	assert.Zero(t, v.Len())
	assert.Nil(t, v.Oldest())

	// Entries reinsert cleanly after a reset.
	assert.True(t, v.ApplyInsert(msgAt(1, 1, base)))
	assert.Equal(t, 1, v.Len())
}

func TestLoaderPagination(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// A fake store with 120 messages, newest first, page size 50.
	total := 120
	pageSize := 50
	store := make([]*models.Message, 0, total)
	for i := total; i >= 1; i-- {
		store = append(store, msgAt(uint(i), 1, base.Add(time.Duration(i)*time.Second)))
	}

	var fetches int
	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		fetches++
		start := 0
		if cursor != nil {
			for i, msg := range store {
				if msg.ID == *cursor {
					start = i + 1
					break
				}
			}
		}
		end := start + pageSize
		if end > len(store) {
			end = len(store)
		}
		page := store[start:end]
		return page, len(page) == pageSize, nil
	}

	v := NewView(1)
	l := NewLoader(v, fetch)
	ctx := context.Background()

	for {
		more, err := l.LoadMore(ctx)
		require.NoError(t, err)
		if !more {
			break
		}
	}

	assert.Equal(t, total, v.Len())
	assert.Equal(t, 3, fetches)
	assert.False(t, l.HasMore())
	assertOrdered(t, v)

	// Exhausted loader does not refetch.
	more, err := l.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 3, fetches)
}

func TestLoaderCoalescesConcurrentCalls(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	release := make(chan struct{})
	var fetches int
	var fetchMu sync.Mutex

	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		fetchMu.Lock()
		fetches++
		fetchMu.Unlock()
		<-release
		return []*models.Message{msgAt(1, 1, base)}, false, nil
	}

	v := NewView(1)
	l := NewLoader(v, fetch)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.LoadMore(ctx)
			assert.NoError(t, err)
		}()
	}

	// Let the goroutines pile up on the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	fetchMu.Lock()
	defer fetchMu.Unlock()
	assert.LessOrEqual(t, fetches, 2, "concurrent calls must coalesce")
	assert.Equal(t, 1, v.Len(), "no duplicate entries after coalesced loads")
}

func TestLoaderRefreshDedupes(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	page := []*models.Message{msgAt(2, 1, base.Add(time.Second)), msgAt(1, 1, base)}

	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		return page, false, nil
	}

	v := NewView(1)
	l := NewLoader(v, fetch)
	ctx := context.Background()

	_, err := l.LoadMore(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())

	// A realtime insert arrives, then a reconnect refresh re-fetches the
	// overlapping page. Nothing duplicates.
	v.ApplyInsert(msgAt(3, 1, base.Add(2*time.Second)))
	require.NoError(t, l.Refresh(ctx))
	assert.Equal(t, 3, v.Len())
	assertOrdered(t, v)
}

func TestLoaderResetStartsOver(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var cursors []*uint

	fetch := func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error) {
		cursors = append(cursors, cursor)
		return []*models.Message{msgAt(1, 1, base)}, true, nil
	}

	v := NewView(1)
	l := NewLoader(v, fetch)
	ctx := context.Background()

	_, err := l.LoadMore(ctx)
	require.NoError(t, err)
	l.Reset()
	assert.Zero(t, v.Len())

	_, err = l.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, cursors, 2)
	assert.Nil(t, cursors[0])
	assert.Nil(t, cursors[1], "reset must clear the cursor")
}

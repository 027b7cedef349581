package timeline

import (
	"context"
	"sync"

	"commons/internal/models"
)

// PageFetcher loads one page of channel history from the store.
type PageFetcher func(ctx context.Context, channelID uint, cursor *uint) ([]*models.Message, bool, error)

// Loader drives paginated history loading for one channel's view. It tracks
// the paging cursor and coalesces concurrent LoadMore calls so a double-fired
// scroll event costs one store round trip, not two overlapping ones.
type Loader struct {
	fetch PageFetcher
	view  *View

	mu       sync.Mutex
	cursor   *uint
	hasMore  bool
	loaded   bool
	inflight chan struct{}
}

// NewLoader creates a loader feeding the given view.
func NewLoader(view *View, fetch PageFetcher) *Loader {
	return &Loader{
		fetch:   fetch,
		view:    view,
		hasMore: true,
	}
}

// LoadMore fetches the next older page and merges it into the view. Callers
// arriving while a fetch is in flight wait for it and return its outcome
// instead of issuing a duplicate fetch. Returns whether more pages remain.
func (l *Loader) LoadMore(ctx context.Context) (bool, error) {
	for {
		l.mu.Lock()
		if !l.hasMore && l.loaded {
			l.mu.Unlock()
			return false, nil
		}
		if l.inflight != nil {
			ch := l.inflight
			l.mu.Unlock()
			select {
			case <-ch:
				l.mu.Lock()
				more := l.hasMore
				l.mu.Unlock()
				return more, nil
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		ch := make(chan struct{})
		l.inflight = ch
		cursor := l.cursor
		l.mu.Unlock()

		messages, hasMore, err := l.fetch(ctx, l.view.ChannelID(), cursor)

		l.mu.Lock()
		l.inflight = nil
		close(ch)
		if err != nil {
			l.mu.Unlock()
			return false, err
		}
		l.loaded = true
		l.hasMore = hasMore
		if len(messages) > 0 {
			// Pages come newest first; the last entry is the oldest and
			// becomes the cursor for the next page.
			oldest := messages[len(messages)-1].ID
			l.cursor = &oldest
		}
		l.mu.Unlock()

		l.view.MergePage(messages)
		return hasMore, nil
	}
}

// Refresh re-fetches the most recent page without moving the cursor, closing
// any gap after a realtime reconnect. Existing entries dedupe the overlap.
func (l *Loader) Refresh(ctx context.Context) error {
	messages, _, err := l.fetch(ctx, l.view.ChannelID(), nil)
	if err != nil {
		return err
	}
	l.view.MergePage(messages)
	return nil
}

// Reset discards paging state along with the view, used on channel switch.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.cursor = nil
	l.hasMore = true
	l.loaded = false
	l.mu.Unlock()
	l.view.Reset()
}

// Loaded reports whether at least one page fetch has completed.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// HasMore reports whether older pages remain.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

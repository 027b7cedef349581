// Package timeline maintains the in-memory ordered message view a connected
// client renders from. Store pages and realtime events both feed the same
// view, which keeps messages sorted by (created_at, id) and deduplicated by
// id no matter what order the network delivers them in.
package timeline

import (
	"sort"
	"sync"
	"time"

	"commons/internal/models"
)

// Update carries the mutable fields of a message change event. Nil fields
// were absent from the payload and leave the existing entry untouched.
type Update struct {
	ID        uint
	Content   *string
	EditedAt  *time.Time
	Reactions *models.ReactionList
	Pinned    *bool
	PinnedBy  *uint
	PinnedAt  *time.Time
	Deleted   bool
}

// View is a concurrency-safe ordered set of messages for one channel.
type View struct {
	mu        sync.RWMutex
	entries   []*models.Message
	index     map[uint]int
	channelID uint
}

// NewView creates an empty view bound to a channel.
func NewView(channelID uint) *View {
	return &View{
		index:     make(map[uint]int),
		channelID: channelID,
	}
}

// ChannelID returns the channel this view is bound to.
func (v *View) ChannelID() uint {
	return v.channelID
}

// less orders entries non-decreasing by created_at, breaking timestamp ties
// by id so two clients converge on the same order.
func less(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ApplyInsert merges a message into the view at its sort position. A message
// already present is ignored, so replayed or double-delivered inserts are
// harmless. Returns true if the view changed.
func (v *View) ApplyInsert(msg *models.Message) bool {
	if msg == nil || msg.ChannelID != v.channelID {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.index[msg.ID]; ok {
		return false
	}

	pos := sort.Search(len(v.entries), func(i int) bool {
		return !less(v.entries[i], msg)
	})
	v.entries = append(v.entries, nil)
	copy(v.entries[pos+1:], v.entries[pos:])
	v.entries[pos] = msg
	v.reindexFrom(pos)
	return true
}

// ApplyUpdate merges changed fields into the existing entry by id. An update
// marking the message deleted removes it from the visible set. Updates for
// messages the view never loaded are dropped.
func (v *View) ApplyUpdate(u Update) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.index[u.ID]
	if !ok {
		return false
	}
	if u.Deleted {
		v.removeAt(pos)
		return true
	}

	entry := v.entries[pos]
	if u.Content != nil {
		entry.Content = *u.Content
	}
	if u.EditedAt != nil {
		entry.EditedAt = u.EditedAt
	}
	if u.Reactions != nil {
		entry.Reactions = *u.Reactions
	}
	if u.Pinned != nil {
		entry.Pinned = *u.Pinned
		entry.PinnedBy = u.PinnedBy
		entry.PinnedAt = u.PinnedAt
	}
	return true
}

// ApplyDelete removes a message from the visible set.
func (v *View) ApplyDelete(id uint) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.index[id]
	if !ok {
		return false
	}
	v.removeAt(pos)
	return true
}

// MergePage folds a store page into the view, deduplicating against entries
// already delivered over the realtime stream.
func (v *View) MergePage(messages []*models.Message) int {
	merged := 0
	for _, msg := range messages {
		if v.ApplyInsert(msg) {
			merged++
		}
	}
	return merged
}

// Messages returns the current visible entries, oldest first.
func (v *View) Messages() []*models.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*models.Message, len(v.entries))
	copy(out, v.entries)
	return out
}

// PageNewest returns up to limit entries newest first, plus the total number
// of visible entries. Entries are shallow copies so callers can serialize
// them while realtime events keep mutating the view.
func (v *View) PageNewest(limit int) ([]*models.Message, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	total := len(v.entries)
	if limit < 0 {
		limit = 0
	}
	if limit > total {
		limit = total
	}
	out := make([]*models.Message, 0, limit)
	for i := total - 1; i >= total-limit; i-- {
		entry := *v.entries[i]
		out = append(out, &entry)
	}
	return out, total
}

// Len returns the number of visible entries.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Oldest returns the oldest visible entry, or nil for an empty view.
func (v *View) Oldest() *models.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.entries) == 0 {
		return nil
	}
	return v.entries[0]
}

// Reset discards all entries, used when switching channels.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = v.entries[:0]
	v.index = make(map[uint]int)
}

func (v *View) removeAt(pos int) {
	id := v.entries[pos].ID
	v.entries = append(v.entries[:pos], v.entries[pos+1:]...)
	delete(v.index, id)
	v.reindexFrom(pos)
}

func (v *View) reindexFrom(pos int) {
	for i := pos; i < len(v.entries); i++ {
		v.index[v.entries[i].ID] = i
	}
}

package timeline

import (
	"context"
	"sync"

	"commons/internal/models"
)

// Manager keeps one warm view per channel. The first read of a channel loads
// a store page through its loader; after that the merged in-memory view
// answers reads while realtime events keep it current, so the newest page
// stays ordered and deduplicated without a store round trip per request.
type Manager struct {
	fetch PageFetcher

	mu      sync.Mutex
	loaders map[uint]*Loader
}

// NewManager creates a manager whose loaders fetch pages with fetch.
func NewManager(fetch PageFetcher) *Manager {
	return &Manager{
		fetch:   fetch,
		loaders: make(map[uint]*Loader),
	}
}

func (m *Manager) loaderFor(channelID uint) *Loader {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loaders[channelID]
	if !ok {
		l = NewLoader(NewView(channelID), m.fetch)
		m.loaders[channelID] = l
	}
	return l
}

// warm returns the channel's view only if one already exists. Events for a
// channel nobody has read are dropped: seeding a view from events alone would
// leave it holding partial history.
func (m *Manager) warm(channelID uint) *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loaders[channelID]; ok {
		return l.view
	}
	return nil
}

// drop removes a loader that never managed to load, so a failed first fetch
// (unknown channel, store error) does not pin an empty view forever.
func (m *Manager) drop(channelID uint, l *Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.loaders[channelID]; ok && current == l && !l.Loaded() {
		delete(m.loaders, channelID)
	}
}

// Latest returns up to limit of the channel's newest messages, newest first,
// plus whether older history remains beyond what was returned.
func (m *Manager) Latest(ctx context.Context, channelID uint, limit int) ([]*models.Message, bool, error) {
	l := m.loaderFor(channelID)
	if !l.Loaded() {
		if _, err := l.LoadMore(ctx); err != nil {
			m.drop(channelID, l)
			return nil, false, err
		}
	}
	messages, total := l.view.PageNewest(limit)
	hasMore := l.HasMore() || total > len(messages)
	return messages, hasMore, nil
}

// ApplyInsert merges a realtime insert into the channel's warm view.
func (m *Manager) ApplyInsert(channelID uint, msg *models.Message) {
	if v := m.warm(channelID); v != nil {
		v.ApplyInsert(msg)
	}
}

// ApplyUpdate merges changed fields into the channel's warm view by id.
func (m *Manager) ApplyUpdate(channelID uint, u Update) {
	if v := m.warm(channelID); v != nil {
		v.ApplyUpdate(u)
	}
}

// ApplyDelete removes a message from the channel's warm view.
func (m *Manager) ApplyDelete(channelID, messageID uint) {
	if v := m.warm(channelID); v != nil {
		v.ApplyDelete(messageID)
	}
}

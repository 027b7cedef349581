package notifications

import (
	"sync"
	"time"
)

// PresenceRecord is the ephemeral payload a client broadcasts while viewing a
// channel.
type PresenceRecord struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

type presenceEntry struct {
	record   PresenceRecord
	deadline time.Time
}

type typingEntry struct {
	username string
	deadline time.Time
}

// PresenceTracker holds the ephemeral per-channel presence and typing state.
// Nothing here is persisted; membership is tied to connection liveness and
// entries that stop being refreshed expire on their own. That makes a client
// that disconnects mid-type drop off the typing list instead of sticking.
type PresenceTracker struct {
	mu sync.Mutex

	// channelID -> userID -> entry
	present map[uint]map[uint]presenceEntry
	typing  map[uint]map[uint]typingEntry

	presenceTTL time.Duration
	typingTTL   time.Duration

	now func() time.Time
}

// NewPresenceTracker creates a tracker with the given liveness windows.
func NewPresenceTracker(presenceTTL, typingTTL time.Duration) *PresenceTracker {
	return &PresenceTracker{
		present:     make(map[uint]map[uint]presenceEntry),
		typing:      make(map[uint]map[uint]typingEntry),
		presenceTTL: presenceTTL,
		typingTTL:   typingTTL,
		now:         time.Now,
	}
}

// Track records (or refreshes) a user's presence in a channel.
func (t *PresenceTracker) Track(channelID uint, rec PresenceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.present[channelID] == nil {
		t.present[channelID] = make(map[uint]presenceEntry)
	}
	t.present[channelID][rec.UserID] = presenceEntry{
		record:   rec,
		deadline: t.now().Add(t.presenceTTL),
	}
}

// Untrack withdraws a user's presence from a channel, along with any typing
// entry.
func (t *PresenceTracker) Untrack(channelID, userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.present[channelID], userID)
	if len(t.present[channelID]) == 0 {
		delete(t.present, channelID)
	}
	delete(t.typing[channelID], userID)
	if len(t.typing[channelID]) == 0 {
		delete(t.typing, channelID)
	}
}

// Heartbeat refreshes a user's presence deadline without changing the record.
// Returns false if the user is not tracked in the channel.
func (t *PresenceTracker) Heartbeat(channelID, userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.present[channelID][userID]
	if !ok {
		return false
	}
	entry.deadline = t.now().Add(t.presenceTTL)
	t.present[channelID][userID] = entry
	return true
}

// Present returns the live presence records for a channel, expired entries
// excluded.
func (t *PresenceTracker) Present(channelID uint) []PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := make([]PresenceRecord, 0, len(t.present[channelID]))
	for userID, entry := range t.present[channelID] {
		if now.After(entry.deadline) {
			delete(t.present[channelID], userID)
			continue
		}
		out = append(out, entry.record)
	}
	return out
}

// SetTyping records that the user is typing in the channel. The entry clears
// itself once the typing window passes without a refresh; there is no
// explicit "stopped typing" signal.
func (t *PresenceTracker) SetTyping(channelID, userID uint, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.typing[channelID] == nil {
		t.typing[channelID] = make(map[uint]typingEntry)
	}
	t.typing[channelID][userID] = typingEntry{
		username: username,
		deadline: t.now().Add(t.typingTTL),
	}
}

// Typing returns the usernames currently typing in the channel, keyed by
// user id. Expired entries are dropped on read.
func (t *PresenceTracker) Typing(channelID uint) map[uint]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := make(map[uint]string)
	for userID, entry := range t.typing[channelID] {
		if now.After(entry.deadline) {
			delete(t.typing[channelID], userID)
			continue
		}
		out[userID] = entry.username
	}
	return out
}

// StartPruning removes expired entries in the background until stop is
// closed. Reads already skip expired entries; this keeps memory bounded for
// channels nobody reads anymore.
func (t *PresenceTracker) StartPruning(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.prune()
			}
		}
	}()
}

func (t *PresenceTracker) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for channelID, users := range t.present {
		for userID, entry := range users {
			if now.After(entry.deadline) {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(t.present, channelID)
		}
	}
	for channelID, users := range t.typing {
		for userID, entry := range users {
			if now.After(entry.deadline) {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(t.typing, channelID)
		}
	}
}

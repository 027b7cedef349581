// Package profiles resolves author display data for chat messages. Lookups go
// through an in-process expiring LRU so hot authors don't hit the database on
// every render; a miss that also fails at the store falls back to the
// denormalized snapshot carried on the message itself.
package profiles

import (
	"context"
	"sync"
	"time"

	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/repository"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Snapshot is the subset of a profile that messages render with.
type Snapshot struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	AvatarURL  string `json:"avatar_url"`
	IsVerified bool   `json:"is_verified"`
	Role       string `json:"role"`
}

// Resolver caches profile snapshots with a TTL. Concurrent lookups for the
// same uncached user are coalesced so a burst of renders for one author costs
// a single store round trip.
type Resolver struct {
	users repository.UserRepository
	cache *expirable.LRU[uint, Snapshot]

	mu       sync.Mutex
	inflight map[uint]*lookup
}

type lookup struct {
	done chan struct{}
	snap Snapshot
	err  error
}

const (
	cacheSize = 4096
	cacheTTL  = 5 * time.Minute
)

// NewResolver creates a profile resolver backed by the user repository.
func NewResolver(users repository.UserRepository) *Resolver {
	return &Resolver{
		users:    users,
		cache:    expirable.NewLRU[uint, Snapshot](cacheSize, nil, cacheTTL),
		inflight: make(map[uint]*lookup),
	}
}

func snapshotOf(u *models.User) Snapshot {
	return Snapshot{
		UserID:     u.ID,
		Username:   u.Username,
		AvatarURL:  u.AvatarURL,
		IsVerified: u.IsVerified,
		Role:       u.Role,
	}
}

// Resolve returns the profile snapshot for the user, from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, userID uint) (Snapshot, error) {
	if snap, ok := r.cache.Get(userID); ok {
		return snap, nil
	}

	r.mu.Lock()
	if l, ok := r.inflight[userID]; ok {
		r.mu.Unlock()
		select {
		case <-l.done:
			return l.snap, l.err
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	l := &lookup{done: make(chan struct{})}
	r.inflight[userID] = l
	r.mu.Unlock()

	user, err := r.users.GetByID(ctx, userID)
	if err == nil {
		l.snap = snapshotOf(user)
		r.cache.Add(userID, l.snap)
	}
	l.err = err

	r.mu.Lock()
	delete(r.inflight, userID)
	r.mu.Unlock()
	close(l.done)

	return l.snap, l.err
}

// ResolveMany resolves a batch of profiles, hitting the store once for all
// cache misses. Unknown ids are simply absent from the result.
func (r *Resolver) ResolveMany(ctx context.Context, userIDs []uint) (map[uint]Snapshot, error) {
	out := make(map[uint]Snapshot, len(userIDs))
	missing := make([]uint, 0, len(userIDs))
	for _, id := range userIDs {
		if snap, ok := r.cache.Get(id); ok {
			out[id] = snap
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	users, err := r.users.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		snap := snapshotOf(u)
		r.cache.Add(u.ID, snap)
		out[u.ID] = snap
	}
	return out, nil
}

// ResolveForMessage resolves the author of a message, falling back to the
// snapshot denormalized onto the message when the profile can't be loaded.
// Rendering never fails on a missing profile.
func (r *Resolver) ResolveForMessage(ctx context.Context, msg *models.Message) Snapshot {
	snap, err := r.Resolve(ctx, msg.AuthorID)
	if err != nil {
		middleware.Logger.DebugContext(ctx, "profile lookup failed, using message snapshot",
			"author_id", msg.AuthorID, "error", err)
		return Snapshot{
			UserID:    msg.AuthorID,
			Username:  msg.AuthorUsername,
			AvatarURL: msg.AuthorAvatar,
		}
	}
	return snap
}

// Invalidate drops the cached snapshot after a profile edit.
func (r *Resolver) Invalidate(userID uint) {
	r.cache.Remove(userID)
}

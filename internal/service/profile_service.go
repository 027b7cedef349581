package service

import (
	"context"
	"strings"

	"commons/internal/cache"
	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/profiles"
	"commons/internal/repository"
)

const maxUsernameLength = 32

// ProfileService reads and updates user profiles. Profiles are owned by the
// identity service; what lives here is the chat-facing slice plus the
// coherency work an edit requires (cache drop, snapshot propagation).
type ProfileService struct {
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	resolver    *profiles.Resolver
}

// NewProfileService returns a new ProfileService.
func NewProfileService(
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	resolver *profiles.Resolver,
) *ProfileService {
	return &ProfileService{userRepo: userRepo, messageRepo: messageRepo, resolver: resolver}
}

// GetProfile returns the user's profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile changes the caller's username and avatar, then propagates the
// change: the resolver entry and the Redis profile key are dropped, and the
// denormalized author snapshots on historical messages are refreshed so old
// pages render the new identity.
func (s *ProfileService) UpdateProfile(ctx context.Context, sess middleware.Session, username, avatarURL string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.NewValidationError("Username is required")
	}
	if len(username) > maxUsernameLength {
		return nil, models.NewValidationError("Username is too long")
	}

	if existing, err := s.userRepo.GetByUsername(ctx, username); err == nil && existing.ID != sess.UserID {
		return nil, models.NewConflictError("Username already in use")
	}

	user, err := s.userRepo.UpdateProfile(ctx, sess.UserID, username, avatarURL)
	if err != nil {
		return nil, err
	}

	s.resolver.Invalidate(sess.UserID)
	cache.InvalidateProfile(ctx, sess.UserID)

	if err := s.messageRepo.RefreshAuthorSnapshots(ctx, sess.UserID, user.Username, user.AvatarURL); err != nil {
		// Snapshots are a fallback, the profile row is the source of truth.
		middleware.Logger.WarnContext(ctx, "author snapshot refresh failed",
			"user_id", sess.UserID, "error", err)
	}
	return user, nil
}

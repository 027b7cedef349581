package service

import (
	"context"
	"fmt"
	"strings"

	"commons/internal/cache"
	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/observability"
	"commons/internal/profiles"
	"commons/internal/repository"

	"github.com/forPelevin/gomoji"
)

const (
	maxContentLength = 4000
	maxSnippetLength = 100
)

// SendMessageInput is the input for sending a channel message.
type SendMessageInput struct {
	ChannelID uint
	Content   string
	ImageURL  string
	ReplyToID *uint
}

// MessagePage is one page of channel history, newest first.
type MessagePage struct {
	Messages []*models.Message `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// ChatService provides channel and message business logic.
type ChatService struct {
	messageRepo repository.MessageRepository
	channelRepo repository.ChannelRepository
	moderation  *ModerationService
	resolver    *profiles.Resolver
	pageSize    int
}

// NewChatService returns a new ChatService.
func NewChatService(
	messageRepo repository.MessageRepository,
	channelRepo repository.ChannelRepository,
	moderation *ModerationService,
	resolver *profiles.Resolver,
	pageSize int,
) *ChatService {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatService{
		messageRepo: messageRepo,
		channelRepo: channelRepo,
		moderation:  moderation,
		resolver:    resolver,
		pageSize:    pageSize,
	}
}

// CreateChannel creates a channel. Any authenticated user may create one.
func (s *ChatService) CreateChannel(ctx context.Context, sess middleware.Session, name, description string) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("Channel name is required")
	}
	if len(name) > 80 {
		return nil, models.NewValidationError("Channel name must be at most 80 characters")
	}

	ch := &models.Channel{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   sess.UserID,
	}
	if err := s.channelRepo.Create(ctx, ch); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") ||
			strings.Contains(strings.ToLower(err.Error()), "duplicate") {
			return nil, models.NewConflictError("Channel name already in use")
		}
		return nil, err
	}
	cache.Invalidate(ctx, cache.ChannelListKey)
	return ch, nil
}

// GetChannel returns a channel with its authorized-user list.
func (s *ChatService) GetChannel(ctx context.Context, channelID uint) (*models.Channel, error) {
	var ch models.Channel
	err := cache.Aside(ctx, cache.ChannelKey(channelID), &ch, cache.ChannelTTL, func() error {
		got, err := s.channelRepo.GetByID(ctx, channelID)
		if err != nil {
			return err
		}
		ch = *got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels returns all channels ordered by name.
func (s *ChatService) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := cache.Aside(ctx, cache.ChannelListKey, &channels, cache.ChannelTTL, func() error {
		got, err := s.channelRepo.List(ctx)
		if err != nil {
			return err
		}
		channels = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// SendMessage creates a message after the moderation check passes. The author
// profile is snapshotted onto the row so historical messages render even if
// the profile is later unavailable. Reply context is snapshotted the same way.
func (s *ChatService) SendMessage(ctx context.Context, sess middleware.Session, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.ImageURL == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxContentLength {
		return nil, models.NewValidationError("Message content is too long")
	}

	if err := s.moderation.CanAct(ctx, sess, in.ChannelID, ActionSend); err != nil {
		return nil, err
	}

	author, err := s.resolver.Resolve(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChannelID:      in.ChannelID,
		AuthorID:       sess.UserID,
		Content:        content,
		ImageURL:       in.ImageURL,
		AuthorUsername: author.Username,
		AuthorAvatar:   author.AvatarURL,
	}

	if in.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, models.NewNotFoundError("Message", *in.ReplyToID)
		}
		if parent.ChannelID != in.ChannelID {
			return nil, models.NewValidationError("Cannot reply across channels")
		}
		msg.ReplyToID = in.ReplyToID
		msg.ReplyToAuthor = parent.AuthorUsername
		msg.ReplyToSnippet = snippet(parent.Content)
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	messageType := "text"
	if in.ImageURL != "" {
		messageType = "image"
	}
	observability.MessageThroughput.WithLabelValues(fmt.Sprint(in.ChannelID), messageType).Inc()
	cache.Invalidate(ctx, cache.LatestPageKey(in.ChannelID))
	return msg, nil
}

// EditMessage updates the content of the caller's own message. Editing on
// behalf of another author is never allowed, admins included.
func (s *ChatService) EditMessage(ctx context.Context, sess middleware.Session, messageID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxContentLength {
		return nil, models.NewValidationError("Message content is too long")
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, models.NewNotFoundError("Message", messageID)
	}
	if msg.AuthorID != sess.UserID {
		return nil, models.NewForbiddenError(ReasonInsufficient)
	}

	updated, err := s.messageRepo.UpdateContent(ctx, messageID, content)
	if err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, cache.LatestPageKey(msg.ChannelID))
	return updated, nil
}

// DeleteMessage soft-deletes a message. Allowed for the author and for
// admins. The row is retained with deleted_at set.
func (s *ChatService) DeleteMessage(ctx context.Context, sess middleware.Session, messageID uint) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, models.NewNotFoundError("Message", messageID)
	}
	if msg.AuthorID != sess.UserID && !sess.IsAdmin() {
		return nil, models.NewForbiddenError(ReasonInsufficient)
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, cache.LatestPageKey(msg.ChannelID))
	return msg, nil
}

// ToggleReaction adds the user's reaction, or removes it if already present.
// Gated by the same moderation check as sending. Returns the updated message
// and whether the reaction was added.
func (s *ChatService) ToggleReaction(ctx context.Context, sess middleware.Session, messageID uint, emoji string) (*models.Message, bool, error) {
	if err := validateReactionEmoji(emoji); err != nil {
		return nil, false, err
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, models.NewNotFoundError("Message", messageID)
	}
	if err := s.moderation.CanAct(ctx, sess, msg.ChannelID, ActionReact); err != nil {
		return nil, false, err
	}

	updated, added, err := s.messageRepo.ToggleReaction(ctx, messageID, emoji, sess.UserID)
	if err != nil {
		return nil, false, err
	}
	cache.Invalidate(ctx, cache.LatestPageKey(msg.ChannelID))
	return updated, added, nil
}

// SetPinned pins or unpins a message. Admin-only.
func (s *ChatService) SetPinned(ctx context.Context, sess middleware.Session, messageID uint, pinned bool) (*models.Message, error) {
	if !sess.IsAdmin() {
		return nil, models.NewForbiddenError(ReasonInsufficient)
	}
	msg, err := s.messageRepo.SetPinned(ctx, messageID, sess.UserID, pinned)
	if err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, cache.LatestPageKey(msg.ChannelID))
	return msg, nil
}

// GetPinned returns the channel's pinned messages, most recently pinned first.
func (s *ChatService) GetPinned(ctx context.Context, channelID uint) ([]*models.Message, error) {
	return s.messageRepo.GetPinned(ctx, channelID)
}

// LoadPage returns one page of non-deleted channel history, newest first.
// Without a cursor the most recent page is served through the cache; cursor
// pages always hit the store since deep history is rarely re-read.
func (s *ChatService) LoadPage(ctx context.Context, channelID uint, cursor *uint) (*MessagePage, error) {
	if _, err := s.channelRepo.GetByID(ctx, channelID); err != nil {
		return nil, err
	}

	if cursor == nil {
		var page MessagePage
		err := cache.Aside(ctx, cache.LatestPageKey(channelID), &page, cache.LatestPageTTL, func() error {
			messages, hasMore, err := s.messageRepo.GetPage(ctx, channelID, nil, s.pageSize)
			if err != nil {
				return err
			}
			page = MessagePage{Messages: messages, HasMore: hasMore}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.refreshAuthors(ctx, page.Messages)
		return &page, nil
	}

	messages, hasMore, err := s.messageRepo.GetPage(ctx, channelID, cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	s.refreshAuthors(ctx, messages)
	return &MessagePage{Messages: messages, HasMore: hasMore}, nil
}

// refreshAuthors overlays live profile data onto the denormalized author
// fields. The stored snapshot stays as the fallback when the profile can't be
// loaded, so rendering never fails on a missing profile.
func (s *ChatService) refreshAuthors(ctx context.Context, messages []*models.Message) {
	for _, msg := range messages {
		snap := s.resolver.ResolveForMessage(ctx, msg)
		msg.AuthorUsername = snap.Username
		msg.AuthorAvatar = snap.AvatarURL
	}
}

// PageSize returns the configured page size.
func (s *ChatService) PageSize() int {
	return s.pageSize
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= maxSnippetLength {
		return content
	}
	return string(runes[:maxSnippetLength])
}

// validateReactionEmoji accepts exactly one emoji and nothing else.
func validateReactionEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return models.NewValidationError("Reaction emoji is required")
	}
	if gomoji.RemoveEmojis(emoji) != "" {
		return models.NewValidationError("Reaction must be an emoji")
	}
	if len(gomoji.FindAll(emoji)) != 1 {
		return models.NewValidationError("Reaction must be a single emoji")
	}
	return nil
}

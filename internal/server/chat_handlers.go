package server

import (
	"context"

	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/notifications"
	"commons/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListChannels returns all channels.
func (s *Server) ListChannels(c *fiber.Ctx) error {
	channels, err := s.chatService.ListChannels(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"channels": channels})
}

// CreateChannel creates a channel. Open to any authenticated user.
func (s *Server) CreateChannel(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	ch, err := s.chatService.CreateChannel(c.UserContext(), sess, body.Name, body.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

// GetChannel returns a channel with its authorized-user list.
func (s *Server) GetChannel(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ch, err := s.chatService.GetChannel(c.UserContext(), channelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ch)
}

// GetMessages returns one page of channel history, newest first. The optional
// cursor query parameter is the id of the oldest already-loaded message;
// results are strictly older than it.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var cursor *uint
	if raw := c.QueryInt("cursor", 0); raw > 0 {
		v := uint(raw)
		cursor = &v
	}

	// The newest page is answered by the channel's warm in-memory view,
	// kept ordered and deduplicated by the realtime event stream. Cursor
	// pages go to the store; deep history is rarely re-read.
	if cursor == nil {
		messages, hasMore, err := s.timelines.Latest(c.UserContext(), channelID, s.chatService.PageSize())
		if err != nil {
			return respondError(c, err)
		}
		s.overlayAuthors(c.UserContext(), messages)
		return c.JSON(service.MessagePage{Messages: messages, HasMore: hasMore})
	}

	page, err := s.chatService.LoadPage(c.UserContext(), channelID, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// overlayAuthors prefers live profile data over the denormalized author
// snapshots held in the warm view, so a rename shows up without waiting for
// the view to cycle. The snapshot stays as the fallback.
func (s *Server) overlayAuthors(ctx context.Context, messages []*models.Message) {
	for _, msg := range messages {
		snap := s.resolver.ResolveForMessage(ctx, msg)
		msg.AuthorUsername = snap.Username
		msg.AuthorAvatar = snap.AvatarURL
	}
}

// SendMessage creates a message in the channel and broadcasts it.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Content   string `json:"content"`
		ImageURL  string `json:"image_url"`
		ReplyToID *uint  `json:"reply_to_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	msg, err := s.chatService.SendMessage(c.UserContext(), sess, service.SendMessageInput{
		ChannelID: channelID,
		Content:   body.Content,
		ImageURL:  body.ImageURL,
		ReplyToID: body.ReplyToID,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(channelID, notifications.Event{
		Type:    notifications.EventMessageCreated,
		UserID:  sess.UserID,
		Payload: msg,
	})
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditMessage updates the caller's own message content.
func (s *Server) EditMessage(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	msg, err := s.chatService.EditMessage(c.UserContext(), sess, messageID, body.Content)
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(msg.ChannelID, notifications.Event{
		Type:   notifications.EventMessageUpdated,
		UserID: sess.UserID,
		Payload: fiber.Map{
			"id":        msg.ID,
			"content":   msg.Content,
			"edited_at": msg.EditedAt,
		},
	})
	return c.JSON(msg)
}

// DeleteMessage soft-deletes a message (author or admin).
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	msg, err := s.chatService.DeleteMessage(c.UserContext(), sess, messageID)
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(msg.ChannelID, notifications.Event{
		Type:   notifications.EventMessageDeleted,
		UserID: sess.UserID,
		Payload: fiber.Map{
			"id":      msg.ID,
			"deleted": true,
		},
	})
	return c.JSON(fiber.Map{"deleted": true})
}

// ToggleReaction adds or removes the caller's reaction on a message.
func (s *Server) ToggleReaction(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	msg, added, err := s.chatService.ToggleReaction(c.UserContext(), sess, messageID, body.Emoji)
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(msg.ChannelID, notifications.Event{
		Type:   notifications.EventReactionsSet,
		UserID: sess.UserID,
		Payload: fiber.Map{
			"id":        msg.ID,
			"reactions": msg.Reactions,
		},
	})
	return c.JSON(fiber.Map{"message": msg, "added": added})
}

// PinMessage pins a message. Admin-only, enforced in the service.
func (s *Server) PinMessage(c *fiber.Ctx) error {
	return s.setPinned(c, true)
}

// UnpinMessage unpins a message. Admin-only, enforced in the service.
func (s *Server) UnpinMessage(c *fiber.Ctx) error {
	return s.setPinned(c, false)
}

func (s *Server) setPinned(c *fiber.Ctx, pinned bool) error {
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	msg, err := s.chatService.SetPinned(c.UserContext(), sess, messageID, pinned)
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(msg.ChannelID, notifications.Event{
		Type:   notifications.EventPinChanged,
		UserID: sess.UserID,
		Payload: fiber.Map{
			"id":        msg.ID,
			"pinned":    msg.Pinned,
			"pinned_by": msg.PinnedBy,
			"pinned_at": msg.PinnedAt,
		},
	})
	return c.JSON(msg)
}

// GetPinnedMessages returns the channel's pinned messages.
func (s *Server) GetPinnedMessages(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	pinned, err := s.chatService.GetPinned(c.UserContext(), channelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"messages": pinned})
}

// GetPresence returns the users currently present in a channel. Cross
// instance ids come from the shared Redis set; profile data is resolved
// through the cache.
func (s *Server) GetPresence(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	records := s.presence.Present(channelID)
	seen := make(map[uint]bool, len(records))
	for _, r := range records {
		seen[r.UserID] = true
	}

	if s.redis != nil {
		ids, err := s.notifier.ListPresence(c.UserContext(), channelID)
		if err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "presence set lookup failed",
				"channel_id", channelID, "error", err)
			ids = nil
		}
		unseen := make([]uint, 0, len(ids))
		for _, id := range ids {
			if !seen[id] {
				unseen = append(unseen, id)
			}
		}
		snaps, err := s.resolver.ResolveMany(c.UserContext(), unseen)
		if err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "presence profile resolution failed",
				"channel_id", channelID, "error", err)
			snaps = nil
		}
		for _, id := range unseen {
			snap, ok := snaps[id]
			if !ok {
				continue
			}
			records = append(records, notifications.PresenceRecord{
				UserID:    snap.UserID,
				Username:  snap.Username,
				AvatarURL: snap.AvatarURL,
			})
			seen[id] = true
		}
	}

	return c.JSON(fiber.Map{"users": records})
}

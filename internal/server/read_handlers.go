package server

import (
	"commons/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// MarkChannelRead upserts the caller's read marker for the channel.
// Idempotent; repeated calls replace the marker.
func (s *Server) MarkChannelRead(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	read, err := s.readService.MarkRead(c.UserContext(), channelID, sess.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(read)
}

// GetUnreadState returns the unread count and divider position for one
// channel.
func (s *Server) GetUnreadState(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	count, err := s.readService.UnreadCount(c.UserContext(), channelID, sess.UserID)
	if err != nil {
		return respondError(c, err)
	}
	marker, err := s.readService.UnreadMarker(c.UserContext(), channelID, sess.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"channel_id":   channelID,
		"unread_count": count,
		"marker_id":    marker,
	})
}

// GetUnreadSummary returns the unread state for every channel the caller has
// visited.
func (s *Server) GetUnreadSummary(c *fiber.Ctx) error {
	sess := middleware.SessionFromCtx(c)
	summary, err := s.readService.UnreadSummary(c.UserContext(), sess.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"channels": summary})
}

package server

import (
	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/notifications"
	"commons/internal/service"

	"github.com/gofiber/fiber/v2"
)

// BanUser opens a ban record. A null channel_id scopes the ban globally.
func (s *Server) BanUser(c *fiber.Ctx) error {
	var body struct {
		UserID    uint   `json:"user_id"`
		ChannelID *uint  `json:"channel_id"`
		Reason    string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	ban, err := s.moderationService.BanUser(c.UserContext(), sess, service.BanInput{
		UserID:    body.UserID,
		ChannelID: body.ChannelID,
		Reason:    body.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ban)
}

// UnbanUser closes an open ban record. The unban reason is optional.
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	banID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional for unban.
	_ = c.BodyParser(&body)

	sess := middleware.SessionFromCtx(c)
	ban, err := s.moderationService.UnbanUser(c.UserContext(), sess, banID, body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ban)
}

// ListOpenBans returns the currently open ban records.
func (s *Server) ListOpenBans(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	sess := middleware.SessionFromCtx(c)
	bans, err := s.moderationService.ListOpenBans(c.UserContext(), sess, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}

// GetBanHistory returns all ban records for a user, open and closed.
func (s *Server) GetBanHistory(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	sess := middleware.SessionFromCtx(c)
	bans, err := s.moderationService.BanHistory(c.UserContext(), sess, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}

// LockChannel locks a channel and broadcasts the state change.
func (s *Server) LockChannel(c *fiber.Ctx) error {
	return s.setChannelLock(c, true)
}

// UnlockChannel unlocks a channel and broadcasts the state change.
func (s *Server) UnlockChannel(c *fiber.Ctx) error {
	return s.setChannelLock(c, false)
}

func (s *Server) setChannelLock(c *fiber.Ctx, locked bool) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	ch, err := s.moderationService.SetChannelLock(c.UserContext(), sess, channelID, locked)
	if err != nil {
		return respondError(c, err)
	}

	s.publishChannelEvent(channelID, notifications.Event{
		Type:   notifications.EventChannelLocked,
		UserID: sess.UserID,
		Payload: fiber.Map{
			"channel_id": ch.ID,
			"is_locked":  ch.IsLocked,
		},
	})
	return c.JSON(ch)
}

// AuthorizeChannelUser adds a user to the channel allowlist.
func (s *Server) AuthorizeChannelUser(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	if err := s.moderationService.AuthorizeUser(c.UserContext(), sess, channelID, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"authorized": true})
}

// RevokeChannelUser removes a user from the channel allowlist.
func (s *Server) RevokeChannelUser(c *fiber.Ctx) error {
	channelID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	sess := middleware.SessionFromCtx(c)
	if err := s.moderationService.RevokeUser(c.UserContext(), sess, channelID, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"authorized": false})
}

// CreateReport files a report against a message or a user.
func (s *Server) CreateReport(c *fiber.Ctx) error {
	var body struct {
		MessageID      *uint  `json:"message_id"`
		ReportedUserID uint   `json:"reported_user_id"`
		Reason         string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	report, err := s.moderationService.CreateReport(c.UserContext(), sess, service.ReportInput{
		MessageID:      body.MessageID,
		ReportedUserID: body.ReportedUserID,
		Reason:         body.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

// ListReports returns reports, optionally filtered by status.
func (s *Server) ListReports(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	status := c.Query("status")
	sess := middleware.SessionFromCtx(c)
	reports, err := s.moderationService.ListReports(c.UserContext(), sess, status, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reports": reports})
}

// ResolveReport settles a pending report as resolved.
func (s *Server) ResolveReport(c *fiber.Ctx) error {
	return s.settleReport(c, models.ReportStatusResolved)
}

// DismissReport settles a pending report as dismissed.
func (s *Server) DismissReport(c *fiber.Ctx) error {
	return s.settleReport(c, models.ReportStatusDismissed)
}

func (s *Server) settleReport(c *fiber.Ctx, status string) error {
	reportID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Notes string `json:"notes"`
	}
	_ = c.BodyParser(&body)

	sess := middleware.SessionFromCtx(c)
	report, err := s.moderationService.SettleReport(c.UserContext(), sess, reportID, status, body.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

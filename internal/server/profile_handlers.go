package server

import (
	"commons/internal/middleware"
	"commons/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetOwnProfile returns the caller's profile.
func (s *Server) GetOwnProfile(c *fiber.Ctx) error {
	sess := middleware.SessionFromCtx(c)
	user, err := s.profileService.GetProfile(c.UserContext(), sess.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile returns another user's profile.
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.profileService.GetProfile(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateOwnProfile changes the caller's username and avatar.
func (s *Server) UpdateOwnProfile(c *fiber.Ctx) error {
	var body struct {
		Username  string `json:"username"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	sess := middleware.SessionFromCtx(c)
	user, err := s.profileService.UpdateProfile(c.UserContext(), sess, body.Username, body.AvatarURL)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

package middleware

import (
	"strconv"
	"strings"

	"commons/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// Session is the authenticated caller identity resolved from a token. Tokens
// are issued by the external identity provider; this service only validates
// them. Services receive the actor explicitly and never read session globals.
type Session struct {
	UserID uint
	Role   string
}

// IsAdmin reports whether the session carries the admin role claim.
func (s Session) IsAdmin() bool {
	return s.Role == "admin"
}

// ParseSession validates a bearer token string and extracts the session.
func ParseSession(tokenString string) (Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	// User ID lives in the "sub" claim (subject claim per RFC 7519).
	subStr, ok := claims["sub"].(string)
	if !ok {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid token structure - missing subject")
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid user ID in token")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = "user"
	}

	return Session{UserID: uint(userID), Role: role}, nil
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	session, err := ParseSession(parts[1])
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("userID", session.UserID)
	c.Locals("role", session.Role)
	c.Locals("session", session)

	return c.Next()
}

// AdminRequired enforces the admin role claim. Must run after AuthRequired.
func AdminRequired(c *fiber.Ctx) error {
	role, _ := c.Locals("role").(string)
	if role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permission",
		})
	}
	return c.Next()
}

// SessionFromCtx returns the session stored by AuthRequired.
func SessionFromCtx(c *fiber.Ctx) Session {
	if s, ok := c.Locals("session").(Session); ok {
		return s
	}
	return Session{}
}

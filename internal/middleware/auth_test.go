package middleware

import (
	"testing"
	"time"

	"commons/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseSession(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: "test-secret"})

	t.Run("valid token with role", func(t *testing.T) {
		raw := signToken(t, "test-secret", jwt.MapClaims{
			"sub":  "42",
			"role": "admin",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		sess, err := ParseSession(raw)
		require.NoError(t, err)
		assert.Equal(t, uint(42), sess.UserID)
		assert.True(t, sess.IsAdmin())
	})

	t.Run("missing role defaults to user", func(t *testing.T) {
		raw := signToken(t, "test-secret", jwt.MapClaims{
			"sub": "7",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		sess, err := ParseSession(raw)
		require.NoError(t, err)
		assert.Equal(t, "user", sess.Role)
		assert.False(t, sess.IsAdmin())
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		raw := signToken(t, "other-secret", jwt.MapClaims{
			"sub": "7",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := ParseSession(raw)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		raw := signToken(t, "test-secret", jwt.MapClaims{
			"sub": "7",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := ParseSession(raw)
		assert.Error(t, err)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		raw := signToken(t, "test-secret", jwt.MapClaims{
			"role": "user",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		_, err := ParseSession(raw)
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseSession("not.a.token")
		assert.Error(t, err)
	})
}

package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiterRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCheckRateLimitWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	rdb := setupLimiterRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "send", "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d is within the window", i+1)
	}

	allowed, err := CheckRateLimit(ctx, rdb, "send", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request exceeds the window")

	t.Run("callers have independent windows", func(t *testing.T) {
		allowed, err := CheckRateLimit(ctx, rdb, "send", "user:2", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestCheckRateLimitDisabledOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	allowed, err := CheckRateLimit(context.Background(), nil, "send", "user:1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	rdb := setupLimiterRedis(t)

	app := fiber.New()
	app.Get("/ping", RateLimit(rdb, 2, time.Minute, "ping"), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter),
		"blocked responses carry a retry hint from the window TTL")
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	app := fiber.New()
	app.Get("/ping", RateLimit(nil, 1, time.Minute, "ping"), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRateLimitFailsClosedWhenConfigured(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	app := fiber.New()
	app.Get("/ping", RateLimitWithPolicy(nil, 1, time.Minute, FailClosed, "ping"), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

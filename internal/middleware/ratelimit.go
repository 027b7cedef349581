package middleware

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// rateLimitKey builds the counter key for one resource and caller.
func rateLimitKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// CheckRateLimit reports whether the caller is within the fixed window for
// the resource. The window is a Redis counter whose expiry is set on the
// first increment. Rate limiting is disabled when APP_ENV is "test" or
// "development" so dev and test workflows are not throttled.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	switch env {
	case "test", "development":
		return true, nil
	}

	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	cnt, err := rdb.Incr(ctx, rateLimitKey(resource, id)).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, rateLimitKey(resource, id), window)
	}
	return cnt <= int64(limit), nil
}

// RetryAfter returns how long the caller should wait before the window
// resets. Zero when unknown.
func RetryAfter(ctx context.Context, rdb *redis.Client, resource, id string) time.Duration {
	if rdb == nil {
		return 0
	}
	ttl, err := rdb.TTL(ctx, rateLimitKey(resource, id)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by authenticated userID (if set in c.Locals("userID")) otherwise by remote IP.
// It defaults to FailOpen policy.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy returns a Fiber middleware enforcing `limit` requests per `window` with a specific failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		var id string
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		} else {
			id = fmt.Sprintf("ip:%s", c.IP())
		}

		// Use the provided name or the request path as the resource identifier
		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, err := CheckRateLimit(ctx, rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(ctx, "rate limit store unavailable, failing closed",
					"route", c.Path(), "resource", resource, "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			// FailOpen: a store outage must not take request handling with it.
			Logger.WarnContext(ctx, "rate limit store unavailable, failing open",
				"route", c.Path(), "resource", resource, "error", err)
			return c.Next()
		}

		if !allowed {
			if wait := RetryAfter(ctx, rdb, resource, id); wait > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(wait.Seconds())+1))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}

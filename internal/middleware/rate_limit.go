package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

// RateLimit creates a per-actor rate limiter middleware instance.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			key := fmt.Sprintf("%v", c.Locals("user_id"))
			if key == "" || key == "<nil>" {
				key = c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, key)
		},
	})
}

// AuthBackoff consults the failure tracker before letting a request through
// and feeds authentication outcomes back into it. A caller still inside its
// advised wait gets a 429 with the remaining wait as a retry hint; everything
// else is untouched because the tracker is advisory.
func AuthBackoff(tracker *service.BackoffTracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := backoffKey(c)

		if wait := tracker.Wait(key); wait > 0 {
			minutes := int(math.Ceil(wait.Minutes()))
			c.Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
			return utils.SendError(c, fiber.StatusTooManyRequests,
				fmt.Sprintf("too many failed attempts, retry in %d minute(s)", minutes))
		}

		err := c.Next()

		switch status := c.Response().StatusCode(); {
		case status == fiber.StatusUnauthorized:
			tracker.Failure(key)
		case status < fiber.StatusBadRequest:
			tracker.Success(key)
		}

		return err
	}
}

func backoffKey(c *fiber.Ctx) string {
	return "auth:" + c.IP()
}

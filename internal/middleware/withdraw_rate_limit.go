package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// WithdrawRateLimit caps withdrawal request attempts per wallet using Redis
// if available. The cooldown policy is the real gate; this only sheds
// hammering clients before they reach the ledger.
func WithdrawRateLimit(cache *redis.Client, maxPerHour int) fiber.Handler {
	if maxPerHour <= 0 {
		maxPerHour = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		walletID := c.Params("walletId")
		if walletID == "" {
			walletID = c.IP()
		}
		key := "rl:withdraw:" + walletID
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Hour)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerHour) {
			return fiber.NewError(http.StatusTooManyRequests, "too many withdrawal attempts, try again later")
		}
		return c.Next()
	}
}

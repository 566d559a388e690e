package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// slowRequestThreshold flags postings that spent real time waiting on wallet
// row locks or conflict retries.
const slowRequestThreshold = 500 * time.Millisecond

// Audit emits a structured log line per request. Wallet and withdrawal route
// parameters are included so money-movement requests can be traced end to end.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		duration := time.Since(start)
		requestID, _ := c.Locals(requestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if walletID := c.Params("walletId"); walletID != "" {
			attrs = append(attrs, slog.String("wallet_id", walletID))
		}
		if withdrawalID := c.Params("requestId"); withdrawalID != "" {
			attrs = append(attrs, slog.String("withdrawal_id", withdrawalID))
		}

		switch {
		case err != nil:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return nil
	}
}

package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const serviceTokenHeader = "X-Service-Token"

// ServiceToken guards collaborator callback routes (identity verification,
// job lifecycle, payout settlement) with a shared secret. tokenHash is the
// bcrypt hash of the expected token; plaintext never lives in config.
func ServiceToken(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(serviceTokenHeader)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing service token")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid service token")
		}
		return c.Next()
	}
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigwallet/gigwallet/internal/middleware"
	"github.com/gigwallet/gigwallet/internal/withdrawal"
)

// RegisterWithdrawalRoutes wires the provider-facing withdrawal endpoints.
func RegisterWithdrawalRoutes(r fiber.Router, h *withdrawal.Handler, d Deps) {
	rateLimiter := middleware.WithdrawRateLimit(d.Cache, d.Cfg.WithdrawRatePerHour)
	r.Get("/wallets/:walletId/withdrawal-eligibility", h.CheckEligibility)
	r.Post("/wallets/:walletId/withdrawals", rateLimiter, h.Request)
	r.Get("/withdrawals/:requestId", h.Get)
	r.Post("/withdrawals/:requestId/cancel", h.Cancel)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

// RegisterWalletRoutes wires the wallet account and transaction history endpoints.
func RegisterWalletRoutes(r fiber.Router, wh *wallet.Handler, lh *ledger.Handler) {
	r.Post("/wallets", wh.GetOrCreate)
	r.Get("/wallets/:walletId/balance", wh.Balances)
	r.Put("/wallets/:walletId/bank-details", wh.UpdateBankDetails)
	r.Get("/wallets/:walletId/transactions", lh.List)
}

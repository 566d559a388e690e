package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigwallet/gigwallet/internal/jobs"
	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/wallet"
	"github.com/gigwallet/gigwallet/internal/withdrawal"
)

// RegisterInternalRoutes wires the collaborator callback endpoints: the
// identity service's verification result, the job lifecycle's ledger events,
// the payout executor's settlement signals, and manual adjustments.
func RegisterInternalRoutes(r fiber.Router, wh *wallet.Handler, lh *ledger.Handler,
	wdh *withdrawal.Handler, jh *jobs.Handler) {
	// Identity service
	r.Post("/wallets/:walletId/identity-verified", wh.MarkIdentityVerified)

	// Job lifecycle system
	r.Post("/job-fees", jh.RecordFee)
	r.Post("/job-payments", jh.RecordPayment)
	r.Post("/fee-top-ups", jh.RecordTopUp)
	r.Get("/job-eligibility", jh.Eligibility)

	// Payout execution system
	r.Post("/withdrawals/:requestId/processing", wdh.BeginProcessing)
	r.Post("/withdrawals/:requestId/completed", wdh.MarkCompleted)
	r.Post("/withdrawals/:requestId/failed", wdh.MarkFailed)

	// Operations
	r.Post("/wallets/:walletId/adjustments", lh.Adjust)
}

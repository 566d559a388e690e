package jobs

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gigwallet/gigwallet/internal/ledger"
)

// Handler exposes the job lifecycle callback endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a jobs HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type feeRequest struct {
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
	Amount  int64  `json:"amount"`
}

// RecordFee records the platform fee for an accepted cash job.
func (h *Handler) RecordFee(c *fiber.Ctx) error {
	var req feeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.RecordJobFee(c.UserContext(), req.OwnerID, req.JobID, req.Amount)
	return respond(c, tx, err)
}

// RecordPayment credits an in-app job payment to the provider's earnings.
func (h *Handler) RecordPayment(c *fiber.Ctx) error {
	var req feeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.RecordJobPayment(c.UserContext(), req.OwnerID, req.JobID, req.Amount)
	return respond(c, tx, err)
}

type topUpRequest struct {
	OwnerID    string `json:"owner_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
}

// RecordTopUp credits a fee balance top-up.
func (h *Handler) RecordTopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.RecordFeeTopUp(c.UserContext(), req.OwnerID, req.PaymentRef, req.Amount)
	return respond(c, tx, err)
}

// Eligibility reports whether the owner may accept new fee-generating jobs.
func (h *Handler) Eligibility(c *fiber.Ctx) error {
	ownerID := c.Query("owner_id")
	allowed, err := h.service.CanAcceptPaidJob(c.UserContext(), ownerID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner_id": ownerID, "can_accept_paid_job": allowed})
}

func respond(c *fiber.Ctx, tx ledger.Transaction, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":         tx.ID,
		"status":                 string(tx.Status),
		"earnings_balance_after": tx.EarningsBalanceAfter,
		"fee_balance_after":      tx.FeeBalanceAfter,
	})
}

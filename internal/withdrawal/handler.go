package withdrawal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

// Handler exposes withdrawal HTTP endpoints: the provider-facing request and
// cancel routes plus the payout executor's settlement callbacks.
type Handler struct {
	service *Service
}

// NewHandler builds a withdrawal HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestBody struct {
	Amount int64 `json:"amount"`
}

type requestResponse struct {
	ID                        string `json:"id"`
	WalletID                  string `json:"wallet_id"`
	Amount                    int64  `json:"amount"`
	Status                    string `json:"status"`
	RequestedAt               string `json:"requested_at"`
	ProcessedAt               string `json:"processed_at,omitempty"`
	CompletedAt               string `json:"completed_at,omitempty"`
	FailedAt                  string `json:"failed_at,omitempty"`
	FailureReason             string `json:"failure_reason,omitempty"`
	PayoutReference           string `json:"payout_reference,omitempty"`
	DebitTransactionID        string `json:"debit_transaction_id"`
	CompensationTransactionID string `json:"compensation_transaction_id,omitempty"`
}

// Request creates a withdrawal for the wallet's earnings balance.
func (h *Handler) Request(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	var body requestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	req, err := h.service.Request(c.UserContext(), walletID, body.Amount)
	if err != nil {
		var eligErr *EligibilityError
		switch {
		case errors.As(err, &eligErr):
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"reason":  string(eligErr.Decision.Reason),
				"message": eligErr.Decision.Message,
			})
		case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return err
		}
	}
	return c.Status(http.StatusCreated).JSON(toRequestResponse(req))
}

// CheckEligibility previews whether a withdrawal of the given amount would be
// accepted, without reserving funds.
func (h *Handler) CheckEligibility(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	amount := int64(c.QueryInt("amount"))

	decision, err := h.service.CheckEligibility(c.UserContext(), walletID, amount)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) || errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}

	resp := fiber.Map{"wallet_id": walletID, "allowed": decision.Allowed}
	if !decision.Allowed {
		resp["reason"] = string(decision.Reason)
		resp["message"] = decision.Message
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Get returns one withdrawal request.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("requestId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(toRequestResponse(req))
}

// Cancel aborts a Pending withdrawal and restores the reserved funds.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	req, err := h.service.Cancel(c.UserContext(), c.Params("requestId"))
	return h.respondTransition(c, req, err)
}

// BeginProcessing is the payout executor's pickup signal.
func (h *Handler) BeginProcessing(c *fiber.Ctx) error {
	req, err := h.service.BeginProcessing(c.UserContext(), c.Params("requestId"))
	return h.respondTransition(c, req, err)
}

// MarkCompleted is the payout executor's settlement signal.
func (h *Handler) MarkCompleted(c *fiber.Ctx) error {
	req, err := h.service.MarkCompleted(c.UserContext(), c.Params("requestId"))
	return h.respondTransition(c, req, err)
}

type failBody struct {
	Reason string `json:"reason"`
}

// MarkFailed is the payout executor's failure signal.
func (h *Handler) MarkFailed(c *fiber.Ctx) error {
	var body failBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if body.Reason == "" {
		return fiber.NewError(http.StatusBadRequest, "failure reason is required")
	}
	req, err := h.service.MarkFailed(c.UserContext(), c.Params("requestId"), body.Reason)
	return h.respondTransition(c, req, err)
}

func (h *Handler) respondTransition(c *fiber.Ctx, req Request, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrIllegalTransition):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(toRequestResponse(req))
}

func toRequestResponse(req Request) requestResponse {
	resp := requestResponse{
		ID:                        req.ID,
		WalletID:                  req.WalletID,
		Amount:                    req.Amount,
		Status:                    string(req.Status),
		RequestedAt:               req.RequestedAt.Format(time.RFC3339Nano),
		FailureReason:             req.FailureReason,
		PayoutReference:           req.PayoutReference,
		DebitTransactionID:        req.DebitTransactionID,
		CompensationTransactionID: req.CompensationTransactionID,
	}
	if req.ProcessedAt != nil {
		resp.ProcessedAt = req.ProcessedAt.Format(time.RFC3339Nano)
	}
	if req.CompletedAt != nil {
		resp.CompletedAt = req.CompletedAt.Format(time.RFC3339Nano)
	}
	if req.FailedAt != nil {
		resp.FailedAt = req.FailedAt.Format(time.RFC3339Nano)
	}
	return resp
}

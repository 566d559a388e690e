package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OwnerID string `json:"owner_id"`
}

type accountResponse struct {
	ID                      string `json:"id"`
	OwnerID                 string `json:"owner_id"`
	Currency                string `json:"currency"`
	FeeThreshold            int64  `json:"fee_threshold"`
	IdentityVerified        bool   `json:"identity_verified"`
	HasBankDetails          bool   `json:"has_bank_details"`
	WithdrawalCooldownHours int    `json:"withdrawal_cooldown_hours"`
	LastWithdrawalAt        string `json:"last_withdrawal_at,omitempty"`
}

// GetOrCreate provisions or returns the wallet for the given owner identity.
func (h *Handler) GetOrCreate(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acc, err := h.service.GetOrCreate(c.UserContext(), req.OwnerID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(acc))
}

// Balances returns the wallet's two balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	bal, err := h.service.Balances(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":        walletID,
		"earnings_balance": bal.Earnings,
		"fee_balance":      bal.Fee,
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type bankDetailsRequest struct {
	HolderName    string `json:"holder_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
}

// UpdateBankDetails replaces the payout destination.
func (h *Handler) UpdateBankDetails(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	var req bankDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	err := h.service.UpdateBankDetails(c.UserContext(), walletID, BankDetails{
		HolderName:    req.HolderName,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkIdentityVerified records the identity service's verification callback.
func (h *Handler) MarkIdentityVerified(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	if err := h.service.MarkIdentityVerified(c.UserContext(), walletID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func toAccountResponse(acc Account) accountResponse {
	resp := accountResponse{
		ID:                      acc.ID,
		OwnerID:                 acc.OwnerID,
		Currency:                acc.Currency,
		FeeThreshold:            acc.FeeThreshold,
		IdentityVerified:        acc.IdentityVerified,
		HasBankDetails:          acc.BankDetails != nil && acc.BankDetails.Complete(),
		WithdrawalCooldownHours: acc.WithdrawalCooldownHours,
	}
	if acc.LastWithdrawalAt != nil {
		resp.LastWithdrawalAt = acc.LastWithdrawalAt.Format(time.RFC3339Nano)
	}
	return resp
}

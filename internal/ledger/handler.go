package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the transaction history and manual adjustment endpoints.
type Handler struct {
	recorder Recorder
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(recorder Recorder) *Handler {
	return &Handler{recorder: recorder}
}

type transactionResponse struct {
	ID                   string `json:"id"`
	WalletID             string `json:"wallet_id"`
	Kind                 string `json:"kind"`
	AffectedBalance      string `json:"affected_balance"`
	Amount               int64  `json:"amount"`
	Description          string `json:"description"`
	SourceReferenceID    string `json:"source_reference_id,omitempty"`
	Status               string `json:"status"`
	EarningsBalanceAfter int64  `json:"earnings_balance_after"`
	FeeBalanceAfter      int64  `json:"fee_balance_after"`
	CreatedAt            string `json:"created_at"`
}

// List serves the paginated, filterable transaction history, newest-first.
func (h *Handler) List(c *fiber.Ctx) error {
	walletID := c.Params("walletId")

	filter := Filter{
		Kind:            Kind(c.Query("kind")),
		AffectedBalance: BalanceKind(c.Query("balance")),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid from timestamp")
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid to timestamp")
		}
		filter.To = t
	}
	page := Page{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}

	txs, err := h.recorder.List(c.UserContext(), walletID, filter, page)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": walletID, "transactions": out})
}

type adjustmentRequest struct {
	Amount         int64  `json:"amount"`
	Balance        string `json:"balance"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
	ReferenceID    string `json:"reference_id"`
}

// Adjust posts a manual correction to either balance. The kind is derived
// from the amount's sign.
func (h *Handler) Adjust(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	var req adjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	kind := KindAdjustmentCredit
	if req.Amount < 0 {
		kind = KindAdjustmentDebit
	}

	tx, err := h.recorder.Apply(c.UserContext(), ApplyInput{
		WalletID:          walletID,
		Kind:              kind,
		AffectedBalance:   BalanceKind(req.Balance),
		Amount:            req.Amount,
		Description:       req.Description,
		IdempotencyKey:    req.IdempotencyKey,
		SourceReferenceID: req.ReferenceID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(tx))
}

func toTransactionResponse(tx Transaction) transactionResponse {
	return transactionResponse{
		ID:                   tx.ID,
		WalletID:             tx.WalletID,
		Kind:                 string(tx.Kind),
		AffectedBalance:      string(tx.AffectedBalance),
		Amount:               tx.Amount,
		Description:          tx.Description,
		SourceReferenceID:    tx.SourceReferenceID,
		Status:               string(tx.Status),
		EarningsBalanceAfter: tx.EarningsBalanceAfter,
		FeeBalanceAfter:      tx.FeeBalanceAfter,
		CreatedAt:            tx.CreatedAt.Format(time.RFC3339Nano),
	}
}

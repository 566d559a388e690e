// Package payout defines the connector to the external bank-transfer
// executor. The subsystem only submits transfer orders; execution and
// settlement signals come back through the withdrawal callbacks.
package payout

import (
	"context"

	"github.com/google/uuid"

	"github.com/gigwallet/gigwallet/internal/wallet"
)

// TransferOrder describes one bank payout to submit.
type TransferOrder struct {
	RequestID   string
	Amount      int64
	Currency    string
	BankDetails wallet.BankDetails
}

// Submission captures the executor's acknowledgement of a transfer order.
type Submission struct {
	Reference string
	Status    string
}

// Gateway represents a connector to an external bank-transfer executor.
type Gateway interface {
	SubmitTransfer(ctx context.Context, order TransferOrder) (Submission, error)
}

// StaticGateway simulates an executor that accepts every order.
type StaticGateway struct{}

// SubmitTransfer acknowledges the order with a synthetic reference.
func (StaticGateway) SubmitTransfer(_ context.Context, _ TransferOrder) (Submission, error) {
	return Submission{Reference: uuid.NewString(), Status: "accepted"}, nil
}

package withdrawal

import (
	"time"

	"github.com/gigwallet/gigwallet/internal/wallet"
)

// Status is the lifecycle state of a withdrawal request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Request is one withdrawal attempt. The bank details are snapshotted at
// request time so later profile edits cannot redirect an in-flight payout.
// Its earnings debit is posted before the request row exists: a Pending or
// Processing request always has a completed debit transaction behind it.
type Request struct {
	ID                        string
	WalletID                  string
	Amount                    int64
	Status                    Status
	BankDetails               wallet.BankDetails
	RequestedAt               time.Time
	ProcessedAt               *time.Time
	CompletedAt               *time.Time
	FailedAt                  *time.Time
	FailureReason             string
	PayoutReference           string
	DebitTransactionID        string
	CompensationTransactionID string
}

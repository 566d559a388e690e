// Package jobs is the ledger-facing edge of the job lifecycle system: fees on
// paid-job acceptance, payouts on job completion, and the acceptance
// eligibility check. The job workflow itself lives elsewhere; only its
// balance effects land here.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigwallet/gigwallet/internal/eligibility"
	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/notification"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

// Service records job-driven ledger entries keyed by job id, so the job
// system can retry deliveries freely.
type Service struct {
	wallets  *wallet.Service
	recorder ledger.Recorder
	notifier notification.Notifier
}

// NewService builds the job collaborator service.
func NewService(wallets *wallet.Service, recorder ledger.Recorder, notifier notification.Notifier) *Service {
	return &Service{wallets: wallets, recorder: recorder, notifier: notifier}
}

// RecordJobFee debits the fee balance for a cash job the provider accepted.
// amount is the positive fee figure. The fee posts even when it drives the
// balance past the threshold; the threshold gates new acceptance, not fees
// already incurred.
func (s *Service) RecordJobFee(ctx context.Context, ownerID, jobID string, amount int64) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("fee amount must be positive")
	}
	if jobID == "" {
		return ledger.Transaction{}, fmt.Errorf("job id is required")
	}
	acc, err := s.wallets.GetOrCreate(ctx, ownerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return s.recorder.Apply(ctx, ledger.ApplyInput{
		WalletID:          acc.ID,
		Kind:              ledger.KindCashJobFee,
		AffectedBalance:   ledger.BalanceFee,
		Amount:            -amount,
		Description:       "platform fee for cash job",
		IdempotencyKey:    "cash-job-fee:" + jobID,
		SourceReferenceID: jobID,
	})
}

// RecordJobPayment credits earnings for a job paid in-app.
func (s *Service) RecordJobPayment(ctx context.Context, ownerID, jobID string, amount int64) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("payment amount must be positive")
	}
	if jobID == "" {
		return ledger.Transaction{}, fmt.Errorf("job id is required")
	}
	acc, err := s.wallets.GetOrCreate(ctx, ownerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	tx, err := s.recorder.Apply(ctx, ledger.ApplyInput{
		WalletID:          acc.ID,
		Kind:              ledger.KindInAppPayment,
		AffectedBalance:   ledger.BalanceEarnings,
		Amount:            amount,
		Description:       "in-app job payment",
		IdempotencyKey:    "job-payment:" + jobID,
		SourceReferenceID: jobID,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentReceived,
			Destination: acc.OwnerID,
			Body:        fmt.Sprintf("You received %d for job %s", amount, jobID),
		})
	}
	return tx, nil
}

// RecordFeeTopUp credits the fee balance with a provider's payment against
// accumulated fees. paymentRef identifies the collection on the payment side.
func (s *Service) RecordFeeTopUp(ctx context.Context, ownerID, paymentRef string, amount int64) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("top-up amount must be positive")
	}
	if paymentRef == "" {
		return ledger.Transaction{}, fmt.Errorf("payment reference is required")
	}
	acc, err := s.wallets.GetOrCreate(ctx, ownerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return s.recorder.Apply(ctx, ledger.ApplyInput{
		WalletID:          acc.ID,
		Kind:              ledger.KindFeeTopUp,
		AffectedBalance:   ledger.BalanceFee,
		Amount:            amount,
		Description:       "fee balance top-up",
		IdempotencyKey:    "fee-top-up:" + paymentRef,
		SourceReferenceID: paymentRef,
	})
}

// CanAcceptPaidJob reports whether the owner's fee balance still permits
// taking on fee-generating jobs.
func (s *Service) CanAcceptPaidJob(ctx context.Context, ownerID string) (bool, error) {
	acc, err := s.wallets.GetOrCreate(ctx, ownerID)
	if err != nil {
		return false, err
	}
	bal, err := s.recorder.Balances(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return false, wallet.ErrNotFound
		}
		return false, err
	}
	return eligibility.CanAcceptPaidJob(eligibility.NewSnapshot(acc, bal)), nil
}

package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gigwallet/gigwallet/internal/ledger"
)

// Defaults seed new accounts the first time an owner identity is seen.
type Defaults struct {
	Currency      string
	FeeThreshold  int64
	CooldownHours int
}

// Service exposes wallet account operations. Balance mutations are not among
// them; those go through the ledger recorder exclusively.
type Service struct {
	repo     Repository
	recorder ledger.Recorder
	defaults Defaults
}

// NewService builds a wallet service instance.
func NewService(repo Repository, recorder ledger.Recorder, defaults Defaults) *Service {
	return &Service{repo: repo, recorder: recorder, defaults: defaults}
}

// GetOrCreate returns the owner's wallet, provisioning one with zero balances
// on first sight. Idempotent, including under concurrent first calls.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (Account, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return Account{}, fmt.Errorf("invalid owner id: %w", err)
	}

	acc, err := s.repo.GetByOwner(ctx, ownerID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}

	now := time.Now().UTC()
	acc = Account{
		ID:                      uuid.NewString(),
		OwnerID:                 ownerID,
		Currency:                s.defaults.Currency,
		FeeThreshold:            s.defaults.FeeThreshold,
		WithdrawalCooldownHours: s.defaults.CooldownHours,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return s.repo.GetByOwner(ctx, ownerID)
		}
		return Account{}, err
	}
	if err := s.recorder.EnsureWallet(ctx, acc.ID); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Get retrieves wallet metadata by wallet id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Balances returns the current ledger balances for the wallet.
func (s *Service) Balances(ctx context.Context, id string) (ledger.Balances, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return ledger.Balances{}, err
	}
	return s.recorder.Balances(ctx, id)
}

// UpdateBankDetails replaces the payout destination after validating it is
// complete enough to execute a transfer.
func (s *Service) UpdateBankDetails(ctx context.Context, id string, details BankDetails) error {
	if !details.Complete() {
		return fmt.Errorf("bank details require holder name, account number and bank name")
	}
	return s.repo.UpdateBankDetails(ctx, id, details)
}

// MarkIdentityVerified records the identity service's verification result.
// Repeat calls are no-ops.
func (s *Service) MarkIdentityVerified(ctx context.Context, id string) error {
	return s.repo.MarkIdentityVerified(ctx, id, time.Now().UTC())
}

// SetLastWithdrawalAt starts the withdrawal cooldown window. Reserved for the
// withdrawal workflow.
func (s *Service) SetLastWithdrawalAt(ctx context.Context, id string, at time.Time) error {
	return s.repo.SetLastWithdrawalAt(ctx, id, at)
}

package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gigwallet/gigwallet/internal/eligibility"
	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/notification"
	"github.com/gigwallet/gigwallet/internal/payout"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

// ErrIllegalTransition indicates a settlement signal arrived for a request
// that is not in the expected prior state. Such signals are rejected, never
// silently applied.
var ErrIllegalTransition = errors.New("illegal withdrawal state transition")

// EligibilityError carries the policy decision that blocked a withdrawal.
type EligibilityError struct {
	Decision eligibility.Decision
}

func (e *EligibilityError) Error() string {
	return e.Decision.Message
}

// Service orchestrates the withdrawal lifecycle: eligibility, fund
// reservation through the ledger, payout submission, and settlement or
// compensation. Funds are reserved at request time and restored by a
// compensating ledger entry when the payout fails, so the ledger stays the
// single source of truth on every path.
type Service struct {
	repo     Repository
	wallets  *wallet.Service
	recorder ledger.Recorder
	gateway  payout.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds the withdrawal workflow service.
func NewService(repo Repository, wallets *wallet.Service, recorder ledger.Recorder,
	gateway payout.Gateway, notifier notification.Notifier, logger *slog.Logger) *Service {
	if gateway == nil {
		gateway = payout.StaticGateway{}
	}
	return &Service{repo: repo, wallets: wallets, recorder: recorder, gateway: gateway, notifier: notifier, logger: logger}
}

func debitKey(requestID string) string {
	return "withdrawal:" + requestID
}

func reversalKey(requestID string) string {
	return "withdrawal-reversal:" + requestID
}

// Request validates eligibility, reserves the funds by debiting earnings, and
// records the Pending withdrawal request. The debit and the cooldown stamp
// happen before any payout step.
func (s *Service) Request(ctx context.Context, walletID string, amount int64) (Request, error) {
	acc, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return Request{}, err
	}
	bal, err := s.recorder.Balances(ctx, walletID)
	if err != nil {
		return Request{}, err
	}

	now := time.Now().UTC()
	decision := eligibility.CanWithdraw(eligibility.NewSnapshot(acc, bal), amount, now)
	if !decision.Allowed {
		return Request{}, &EligibilityError{Decision: decision}
	}

	requestID := uuid.NewString()
	debit, err := s.recorder.Apply(ctx, ledger.ApplyInput{
		WalletID:          walletID,
		Kind:              ledger.KindWithdrawal,
		AffectedBalance:   ledger.BalanceEarnings,
		Amount:            -amount,
		Description:       "withdrawal to bank account",
		IdempotencyKey:    debitKey(requestID),
		SourceReferenceID: requestID,
	})
	if err != nil {
		// A competing debit may have landed between the eligibility read and
		// the posting; surface it like any other insufficient-funds outcome.
		return Request{}, err
	}

	req := Request{
		ID:                 requestID,
		WalletID:           walletID,
		Amount:             amount,
		Status:             StatusPending,
		BankDetails:        *acc.BankDetails,
		RequestedAt:        now,
		DebitTransactionID: debit.ID,
	}
	// The cooldown stamp is part of the reservation: without it the next
	// request would sail past the cooldown gate.
	if err := s.wallets.SetLastWithdrawalAt(ctx, walletID, now); err != nil {
		s.compensateAborted(ctx, req)
		return Request{}, fmt.Errorf("start withdrawal cooldown: %w", err)
	}

	if err := s.repo.Create(ctx, req); err != nil {
		s.compensateAborted(ctx, req)
		return Request{}, err
	}
	return req, nil
}

// compensateAborted restores the reserved funds when the request cannot be
// recorded after its debit already posted.
func (s *Service) compensateAborted(ctx context.Context, req Request) {
	if _, err := s.recorder.Apply(ctx, s.reversalInput(req)); err != nil {
		s.logger.Error("orphaned withdrawal debit",
			"wallet_id", req.WalletID, "request_id", req.ID, "error", err)
	}
}

// BeginProcessing moves a Pending request to Processing and submits the
// transfer order to the payout executor. Idempotent when already Processing.
// The Processing claim lands before the transfer order goes out, so two
// racing pickup signals cannot both reach the executor; the loser of the
// claim returns the winner's view without submitting.
func (s *Service) BeginProcessing(ctx context.Context, requestID string) (Request, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	switch req.Status {
	case StatusProcessing:
		// Only the claim owner submits; a repeated signal returns the
		// current view even while the submission is still in flight.
		return req, nil
	case StatusPending:
		now := time.Now().UTC()
		req.Status = StatusProcessing
		req.ProcessedAt = &now
		if err := s.repo.Update(ctx, req, StatusPending); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return s.resolveConflict(ctx, requestID, StatusProcessing)
			}
			return Request{}, err
		}
	default:
		return Request{}, s.illegal(req, StatusProcessing)
	}

	acc, err := s.wallets.Get(ctx, req.WalletID)
	if err != nil {
		return Request{}, err
	}
	submission, err := s.gateway.SubmitTransfer(ctx, payout.TransferOrder{
		RequestID:   req.ID,
		Amount:      req.Amount,
		Currency:    acc.Currency,
		BankDetails: req.BankDetails,
	})
	if err != nil {
		return Request{}, fmt.Errorf("submit transfer: %w", err)
	}

	req.PayoutReference = submission.Reference
	if err := s.repo.Update(ctx, req, StatusProcessing); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolveConflict(ctx, requestID, StatusProcessing)
		}
		return Request{}, err
	}
	return req, nil
}

// MarkCompleted settles a Processing request. No balance change: the funds
// were debited when the request was made.
func (s *Service) MarkCompleted(ctx context.Context, requestID string) (Request, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	switch req.Status {
	case StatusCompleted:
		return req, nil
	case StatusProcessing:
	default:
		return Request{}, s.illegal(req, StatusCompleted)
	}

	now := time.Now().UTC()
	req.Status = StatusCompleted
	req.CompletedAt = &now

	if err := s.repo.Update(ctx, req, StatusProcessing); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolveConflict(ctx, requestID, StatusCompleted)
		}
		return Request{}, err
	}

	s.notify(ctx, req, notification.KindWithdrawalCompleted,
		fmt.Sprintf("Your withdrawal of %d settled", req.Amount))
	return req, nil
}

// MarkFailed fails a Processing request. The compensating credit is posted
// before the request is reported terminal, so a Failed withdrawal is always
// fully explained by two ledger rows.
func (s *Service) MarkFailed(ctx context.Context, requestID, reason string) (Request, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	switch req.Status {
	case StatusFailed:
		return req, nil
	case StatusProcessing:
	default:
		return Request{}, s.illegal(req, StatusFailed)
	}

	compensation, err := s.recorder.Apply(ctx, s.reversalInput(req))
	if err != nil {
		return Request{}, fmt.Errorf("compensate withdrawal: %w", err)
	}

	now := time.Now().UTC()
	req.Status = StatusFailed
	req.FailedAt = &now
	req.FailureReason = reason
	req.CompensationTransactionID = compensation.ID

	if err := s.repo.Update(ctx, req, StatusProcessing); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolveConflict(ctx, requestID, StatusFailed)
		}
		return Request{}, err
	}

	s.notify(ctx, req, notification.KindWithdrawalFailed,
		fmt.Sprintf("Your withdrawal of %d failed (%s); the funds are back in your balance", req.Amount, reason))
	return req, nil
}

// Cancel withdraws a request before the payout executor picked it up. Legal
// only while Pending; the reserved funds are restored immediately.
func (s *Service) Cancel(ctx context.Context, requestID string) (Request, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	switch req.Status {
	case StatusCancelled:
		return req, nil
	case StatusPending:
	default:
		return Request{}, s.illegal(req, StatusCancelled)
	}

	compensation, err := s.recorder.Apply(ctx, s.reversalInput(req))
	if err != nil {
		return Request{}, fmt.Errorf("compensate withdrawal: %w", err)
	}

	req.Status = StatusCancelled
	req.CompensationTransactionID = compensation.ID

	if err := s.repo.Update(ctx, req, StatusPending); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolveConflict(ctx, requestID, StatusCancelled)
		}
		return Request{}, err
	}
	return req, nil
}

// Get fetches one withdrawal request.
func (s *Service) Get(ctx context.Context, requestID string) (Request, error) {
	return s.repo.Get(ctx, requestID)
}

// CheckEligibility evaluates the withdrawal gates without reserving anything,
// so clients can surface the blocking reason before submitting a request.
func (s *Service) CheckEligibility(ctx context.Context, walletID string, amount int64) (eligibility.Decision, error) {
	acc, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	bal, err := s.recorder.Balances(ctx, walletID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	return eligibility.CanWithdraw(eligibility.NewSnapshot(acc, bal), amount, time.Now().UTC()), nil
}

func (s *Service) reversalInput(req Request) ledger.ApplyInput {
	return ledger.ApplyInput{
		WalletID:          req.WalletID,
		Kind:              ledger.KindWithdrawalReversal,
		AffectedBalance:   ledger.BalanceEarnings,
		Amount:            req.Amount,
		Description:       "withdrawal reversal",
		IdempotencyKey:    reversalKey(req.ID),
		SourceReferenceID: req.ID,
	}
}

// resolveConflict re-reads a request after a lost compare-and-set. A
// concurrent retry of the same signal that already landed in the desired
// state counts as success; anything else is an illegal transition.
func (s *Service) resolveConflict(ctx context.Context, requestID string, want Status) (Request, error) {
	current, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if current.Status == want {
		return current, nil
	}
	return Request{}, s.illegal(current, want)
}

func (s *Service) illegal(req Request, want Status) error {
	s.logger.Warn("rejected withdrawal transition",
		"request_id", req.ID, "current_status", string(req.Status), "requested_status", string(want))
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, req.Status, want)
}

func (s *Service) notify(ctx context.Context, req Request, kind, body string) {
	if s.notifier == nil {
		return
	}
	acc, err := s.wallets.Get(ctx, req.WalletID)
	if err != nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: acc.OwnerID,
		Body:        body,
	})
}

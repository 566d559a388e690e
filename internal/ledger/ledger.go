package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWalletNotFound occurs when a posting references a wallet that was never provisioned.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds occurs when a posting would drive the earnings balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict indicates the posting lost a serialization race and exhausted its retry budget.
	ErrConflict = errors.New("concurrent update conflict, try again")
)

// Kind classifies a balance-changing event.
type Kind string

const (
	// KindCashJobFee is the platform fee owed after accepting a cash job. Debits the fee balance.
	KindCashJobFee Kind = "cash_job_fee"
	// KindInAppPayment is a job payout collected in-app on the provider's behalf. Credits earnings.
	KindInAppPayment Kind = "in_app_payment"
	// KindWithdrawal reserves earnings for a bank payout. Debits earnings.
	KindWithdrawal Kind = "withdrawal"
	// KindWithdrawalReversal restores earnings after a failed or cancelled payout.
	KindWithdrawalReversal Kind = "withdrawal_reversal"
	// KindFeeTopUp is a provider payment against accumulated fees. Credits the fee balance.
	KindFeeTopUp Kind = "fee_top_up"
	// KindAdjustmentDebit is a manual correction removing funds from either balance.
	KindAdjustmentDebit Kind = "adjustment_debit"
	// KindAdjustmentCredit is a manual correction adding funds to either balance.
	KindAdjustmentCredit Kind = "adjustment_credit"
)

// BalanceKind selects which of the two wallet balances a transaction affects.
type BalanceKind string

const (
	// BalanceEarnings is the withdrawable balance. Never negative.
	BalanceEarnings BalanceKind = "earnings"
	// BalanceFee is the accumulated platform fee balance. May go negative.
	BalanceFee BalanceKind = "fee"
)

// Status is the lifecycle state of a ledger transaction.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Transaction is one immutable row of the wallet ledger. After-balance
// snapshots are captured atomically with the balance mutation so audits can
// reconstruct any point in time without replay.
type Transaction struct {
	ID                   string
	WalletID             string
	IdempotencyKey       string
	Kind                 Kind
	AffectedBalance      BalanceKind
	Amount               int64
	Description          string
	SourceReferenceID    string
	Status               Status
	EarningsBalanceAfter int64
	FeeBalanceAfter      int64
	CreatedAt            time.Time
}

// Balances is a point-in-time view of the two wallet balances, in currency minor units.
type Balances struct {
	Earnings int64
	Fee      int64
}

// ApplyInput captures one posting request.
type ApplyInput struct {
	WalletID          string
	Kind              Kind
	AffectedBalance   BalanceKind
	Amount            int64
	Description       string
	IdempotencyKey    string
	SourceReferenceID string
}

// Validate rejects postings whose sign or target balance does not match the
// declared kind, before any lock is taken.
func (in ApplyInput) Validate() error {
	if in.WalletID == "" {
		return fmt.Errorf("wallet id is required")
	}
	if in.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if in.Amount == 0 {
		return fmt.Errorf("amount must be non-zero")
	}
	if in.AffectedBalance != BalanceEarnings && in.AffectedBalance != BalanceFee {
		return fmt.Errorf("unknown affected balance %q", in.AffectedBalance)
	}

	requireBalance := func(b BalanceKind) error {
		if in.AffectedBalance != b {
			return fmt.Errorf("%s must affect the %s balance", in.Kind, b)
		}
		return nil
	}
	requireSign := func(credit bool) error {
		if credit && in.Amount < 0 {
			return fmt.Errorf("%s must be a credit", in.Kind)
		}
		if !credit && in.Amount > 0 {
			return fmt.Errorf("%s must be a debit", in.Kind)
		}
		return nil
	}

	switch in.Kind {
	case KindCashJobFee:
		if err := requireBalance(BalanceFee); err != nil {
			return err
		}
		return requireSign(false)
	case KindInAppPayment:
		if err := requireBalance(BalanceEarnings); err != nil {
			return err
		}
		return requireSign(true)
	case KindWithdrawal:
		if err := requireBalance(BalanceEarnings); err != nil {
			return err
		}
		return requireSign(false)
	case KindWithdrawalReversal:
		if err := requireBalance(BalanceEarnings); err != nil {
			return err
		}
		return requireSign(true)
	case KindFeeTopUp:
		if err := requireBalance(BalanceFee); err != nil {
			return err
		}
		return requireSign(true)
	case KindAdjustmentDebit:
		return requireSign(false)
	case KindAdjustmentCredit:
		return requireSign(true)
	default:
		return fmt.Errorf("unknown transaction kind %q", in.Kind)
	}
}

// Filter narrows a transaction history query. Zero values match everything.
type Filter struct {
	Kind            Kind
	AffectedBalance BalanceKind
	From            time.Time
	To              time.Time
}

// Page bounds a history query. Limit defaults to 50, capped at 200.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return defaultPageLimit
	case p.Limit > maxPageLimit:
		return maxPageLimit
	default:
		return p.Limit
	}
}

func (p Page) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// Recorder is the only component permitted to mutate wallet balances. Every
// mutation is one atomic unit: the balance change plus an immutable
// transaction row, or neither.
type Recorder interface {
	// EnsureWallet initializes zero balances for a newly provisioned wallet.
	EnsureWallet(ctx context.Context, walletID string) error

	// Apply posts one transaction and its balance effect atomically.
	// Replaying an idempotency key already seen for the wallet returns the
	// existing transaction unchanged with no further effect.
	Apply(ctx context.Context, input ApplyInput) (Transaction, error)

	// Balances reads the current balances without locking the wallet.
	Balances(ctx context.Context, walletID string) (Balances, error)

	// List returns the wallet's transactions newest-first. Read-only, never locks.
	List(ctx context.Context, walletID string, filter Filter, page Page) ([]Transaction, error)
}

func (f Filter) matches(tx Transaction) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.AffectedBalance != "" && tx.AffectedBalance != f.AffectedBalance {
		return false
	}
	if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Package eligibility holds the pure decision logic gating withdrawals and
// paid-job acceptance. It performs no I/O; callers pass a snapshot of the
// wallet state they already hold.
package eligibility

import (
	"fmt"
	"time"

	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

// Reason identifies why a withdrawal was rejected.
type Reason string

const (
	ReasonNonPositiveAmount   Reason = "non_positive_amount"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonIdentityUnverified  Reason = "identity_unverified"
	ReasonBankDetailsMissing  Reason = "bank_details_missing"
	ReasonCooldownActive      Reason = "cooldown_active"
)

// Decision is the outcome of a withdrawal eligibility check. When rejected,
// Message carries a human-actionable explanation.
type Decision struct {
	Allowed           bool
	Reason            Reason
	Message           string
	CooldownRemaining time.Duration
}

// Snapshot is the wallet state the policy evaluates. Assembled by the caller
// from the account metadata and the ledger balances.
type Snapshot struct {
	EarningsBalance  int64
	FeeBalance       int64
	FeeThreshold     int64
	IdentityVerified bool
	BankDetails      *wallet.BankDetails
	LastWithdrawalAt *time.Time
	CooldownHours    int
}

// NewSnapshot combines account metadata and ledger balances into a policy input.
func NewSnapshot(acc wallet.Account, bal ledger.Balances) Snapshot {
	return Snapshot{
		EarningsBalance:  bal.Earnings,
		FeeBalance:       bal.Fee,
		FeeThreshold:     acc.FeeThreshold,
		IdentityVerified: acc.IdentityVerified,
		BankDetails:      acc.BankDetails,
		LastWithdrawalAt: acc.LastWithdrawalAt,
		CooldownHours:    acc.WithdrawalCooldownHours,
	}
}

// CanWithdraw evaluates the fixed sequence of withdrawal gates. The first
// failing check wins so rejection messages stay deterministic.
func CanWithdraw(s Snapshot, amount int64, now time.Time) Decision {
	if amount <= 0 {
		return rejected(ReasonNonPositiveAmount, "amount must be positive")
	}
	if amount > s.EarningsBalance {
		return rejected(ReasonInsufficientBalance, "insufficient balance")
	}
	if !s.IdentityVerified {
		return rejected(ReasonIdentityUnverified, "identity verification required")
	}
	if s.BankDetails == nil || !s.BankDetails.Complete() {
		return rejected(ReasonBankDetailsMissing, "bank details required")
	}
	if s.LastWithdrawalAt != nil {
		until := s.LastWithdrawalAt.Add(time.Duration(s.CooldownHours) * time.Hour)
		if now.Before(until) {
			remaining := until.Sub(now)
			hours := int(remaining.Hours())
			if remaining > time.Duration(hours)*time.Hour {
				hours++
			}
			dec := rejected(ReasonCooldownActive, fmt.Sprintf("cooldown active, try again in %dh", hours))
			dec.CooldownRemaining = remaining
			return dec
		}
	}
	return Decision{Allowed: true}
}

// CanAcceptPaidJob reports whether the provider may take on new fee-generating
// jobs. The fee balance may keep sliding below the threshold through fees on
// jobs already accepted; only new acceptance is gated.
func CanAcceptPaidJob(s Snapshot) bool {
	return s.FeeBalance >= s.FeeThreshold
}

func rejected(reason Reason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

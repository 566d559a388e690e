package eligibility

import (
	"testing"
	"time"

	"github.com/gigwallet/gigwallet/internal/wallet"
)

var completeBank = &wallet.BankDetails{
	HolderName:    "Amina K",
	AccountNumber: "0011223344",
	BankName:      "First Bank",
}

func eligibleSnapshot() Snapshot {
	return Snapshot{
		EarningsBalance:  10_000,
		FeeThreshold:     -2_000,
		IdentityVerified: true,
		BankDetails:      completeBank,
		CooldownHours:    24,
	}
}

func TestCanWithdrawAllows(t *testing.T) {
	dec := CanWithdraw(eligibleSnapshot(), 5_000, time.Now())
	if !dec.Allowed {
		t.Fatalf("expected allowed, got %+v", dec)
	}
}

func TestCanWithdrawCheckOrder(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*Snapshot)
		amount int64
		reason Reason
	}{
		{"non-positive amount", func(*Snapshot) {}, 0, ReasonNonPositiveAmount},
		{"negative amount", func(*Snapshot) {}, -5, ReasonNonPositiveAmount},
		{"insufficient balance", func(*Snapshot) {}, 10_001, ReasonInsufficientBalance},
		{"unverified identity", func(s *Snapshot) { s.IdentityVerified = false }, 1_000, ReasonIdentityUnverified},
		{"missing bank details", func(s *Snapshot) { s.BankDetails = nil }, 1_000, ReasonBankDetailsMissing},
		{"incomplete bank details", func(s *Snapshot) {
			s.BankDetails = &wallet.BankDetails{HolderName: "Amina K"}
		}, 1_000, ReasonBankDetailsMissing},
		{"cooldown active", func(s *Snapshot) { s.LastWithdrawalAt = &recent }, 1_000, ReasonCooldownActive},
	}

	for _, tc := range cases {
		s := eligibleSnapshot()
		tc.mutate(&s)
		dec := CanWithdraw(s, tc.amount, now)
		if dec.Allowed {
			t.Errorf("%s: expected rejection", tc.name)
			continue
		}
		if dec.Reason != tc.reason {
			t.Errorf("%s: expected reason %s, got %s", tc.name, tc.reason, dec.Reason)
		}
		if dec.Message == "" {
			t.Errorf("%s: expected a message", tc.name)
		}
	}
}

// With both an insufficient balance and an unverified identity the balance
// check must win; the order is fixed.
func TestCanWithdrawFirstFailingCheckWins(t *testing.T) {
	s := eligibleSnapshot()
	s.IdentityVerified = false
	dec := CanWithdraw(s, 50_000, time.Now())
	if dec.Reason != ReasonInsufficientBalance {
		t.Fatalf("expected insufficient balance to win, got %s", dec.Reason)
	}
}

func TestCanWithdrawCooldownRemaining(t *testing.T) {
	now := time.Now().UTC()
	sixHoursAgo := now.Add(-6 * time.Hour)

	s := eligibleSnapshot()
	s.LastWithdrawalAt = &sixHoursAgo
	dec := CanWithdraw(s, 1_000, now)
	if dec.Allowed {
		t.Fatal("expected cooldown rejection")
	}
	if dec.CooldownRemaining <= 17*time.Hour || dec.CooldownRemaining > 18*time.Hour {
		t.Fatalf("expected ~18h remaining, got %v", dec.CooldownRemaining)
	}
	if dec.Message != "cooldown active, try again in 18h" {
		t.Fatalf("unexpected message: %q", dec.Message)
	}
}

func TestCanWithdrawCooldownExpired(t *testing.T) {
	now := time.Now().UTC()
	twoDaysAgo := now.Add(-48 * time.Hour)

	s := eligibleSnapshot()
	s.LastWithdrawalAt = &twoDaysAgo
	if dec := CanWithdraw(s, 1_000, now); !dec.Allowed {
		t.Fatalf("expected allowed after cooldown, got %+v", dec)
	}
}

func TestCanAcceptPaidJobThreshold(t *testing.T) {
	// Fee balance sliding from 0 by -1000 steps against a -2000 threshold:
	// acceptance stays open at the threshold and closes below it.
	s := Snapshot{FeeThreshold: -2_000}
	steps := []struct {
		fee  int64
		want bool
	}{
		{0, true},
		{-1_000, true},
		{-2_000, true},
		{-3_000, false},
	}
	for _, step := range steps {
		s.FeeBalance = step.fee
		if got := CanAcceptPaidJob(s); got != step.want {
			t.Errorf("fee %d: expected %v, got %v", step.fee, step.want, got)
		}
	}
}

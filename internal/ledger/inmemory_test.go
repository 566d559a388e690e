package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newRecorderWithWallet(t *testing.T, walletID string) Recorder {
	t.Helper()
	r := NewInMemory()
	if err := r.EnsureWallet(context.Background(), walletID); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	return r
}

func TestApplyCreditsEarnings(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	tx, err := r.Apply(ctx, ApplyInput{
		WalletID:        "w1",
		Kind:            KindInAppPayment,
		AffectedBalance: BalanceEarnings,
		Amount:          5_000,
		Description:     "job payout",
		IdempotencyKey:  "job-1",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if tx.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", tx.Status)
	}
	if tx.EarningsBalanceAfter != 5_000 || tx.FeeBalanceAfter != 0 {
		t.Fatalf("unexpected snapshots: %+v", tx)
	}

	bal, err := r.Balances(ctx, "w1")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal.Earnings != 5_000 {
		t.Fatalf("expected earnings 5000, got %d", bal.Earnings)
	}
}

func TestApplyRejectsNegativeEarnings(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()
	SeedBalances(r, "w1", Balances{Earnings: 1_000})

	_, err := r.Apply(ctx, ApplyInput{
		WalletID:        "w1",
		Kind:            KindWithdrawal,
		AffectedBalance: BalanceEarnings,
		Amount:          -1_500,
		IdempotencyKey:  "wd-1",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// No partial application: balance and history untouched.
	bal, _ := r.Balances(ctx, "w1")
	if bal.Earnings != 1_000 {
		t.Fatalf("balance mutated on failed apply: %d", bal.Earnings)
	}
	txs, _ := r.List(ctx, "w1", Filter{}, Page{})
	if len(txs) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(txs))
	}
}

func TestApplyFeeBalanceMayGoNegative(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tx, err := r.Apply(ctx, ApplyInput{
			WalletID:        "w1",
			Kind:            KindCashJobFee,
			AffectedBalance: BalanceFee,
			Amount:          -1_000,
			IdempotencyKey:  fmt.Sprintf("fee-%d", i),
		})
		if err != nil {
			t.Fatalf("fee apply %d failed: %v", i, err)
		}
		if want := int64(-1_000 * (i + 1)); tx.FeeBalanceAfter != want {
			t.Fatalf("expected fee balance %d, got %d", want, tx.FeeBalanceAfter)
		}
	}
}

func TestApplyIdempotentReplay(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	input := ApplyInput{
		WalletID:        "w1",
		Kind:            KindInAppPayment,
		AffectedBalance: BalanceEarnings,
		Amount:          2_500,
		IdempotencyKey:  "job-42",
	}

	first, err := r.Apply(ctx, input)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := r.Apply(ctx, input)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay produced a new transaction: %s vs %s", second.ID, first.ID)
	}

	bal, _ := r.Balances(ctx, "w1")
	if bal.Earnings != 2_500 {
		t.Fatalf("replay produced a second balance effect: %d", bal.Earnings)
	}
	txs, _ := r.List(ctx, "w1", Filter{}, Page{})
	if len(txs) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(txs))
	}
}

func TestApplyWalletNotFound(t *testing.T) {
	r := NewInMemory()
	_, err := r.Apply(context.Background(), ApplyInput{
		WalletID:        "missing",
		Kind:            KindInAppPayment,
		AffectedBalance: BalanceEarnings,
		Amount:          100,
		IdempotencyKey:  "k",
	})
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestApplyInputValidation(t *testing.T) {
	cases := []struct {
		name  string
		input ApplyInput
	}{
		{"missing idempotency key", ApplyInput{WalletID: "w", Kind: KindInAppPayment, AffectedBalance: BalanceEarnings, Amount: 100}},
		{"zero amount", ApplyInput{WalletID: "w", Kind: KindInAppPayment, AffectedBalance: BalanceEarnings, IdempotencyKey: "k"}},
		{"fee kind on earnings", ApplyInput{WalletID: "w", Kind: KindCashJobFee, AffectedBalance: BalanceEarnings, Amount: -100, IdempotencyKey: "k"}},
		{"withdrawal as credit", ApplyInput{WalletID: "w", Kind: KindWithdrawal, AffectedBalance: BalanceEarnings, Amount: 100, IdempotencyKey: "k"}},
		{"reversal as debit", ApplyInput{WalletID: "w", Kind: KindWithdrawalReversal, AffectedBalance: BalanceEarnings, Amount: -100, IdempotencyKey: "k"}},
		{"unknown kind", ApplyInput{WalletID: "w", Kind: "mystery", AffectedBalance: BalanceEarnings, Amount: 100, IdempotencyKey: "k"}},
		{"unknown balance", ApplyInput{WalletID: "w", Kind: KindAdjustmentCredit, AffectedBalance: "other", Amount: 100, IdempotencyKey: "k"}},
	}
	r := newRecorderWithWallet(t, "w")
	for _, tc := range cases {
		if _, err := r.Apply(context.Background(), tc.input); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestReplayCompletedRowsReconstructsBalances(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	inputs := []ApplyInput{
		{WalletID: "w1", Kind: KindInAppPayment, AffectedBalance: BalanceEarnings, Amount: 10_000, IdempotencyKey: "a"},
		{WalletID: "w1", Kind: KindCashJobFee, AffectedBalance: BalanceFee, Amount: -1_500, IdempotencyKey: "b"},
		{WalletID: "w1", Kind: KindWithdrawal, AffectedBalance: BalanceEarnings, Amount: -4_000, IdempotencyKey: "c"},
		{WalletID: "w1", Kind: KindFeeTopUp, AffectedBalance: BalanceFee, Amount: 500, IdempotencyKey: "d"},
		{WalletID: "w1", Kind: KindWithdrawalReversal, AffectedBalance: BalanceEarnings, Amount: 4_000, IdempotencyKey: "e"},
	}
	for _, in := range inputs {
		if _, err := r.Apply(ctx, in); err != nil {
			t.Fatalf("apply %s: %v", in.IdempotencyKey, err)
		}
	}

	txs, err := r.List(ctx, "w1", Filter{}, Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var replayed Balances
	for _, tx := range txs {
		if tx.Status != StatusCompleted {
			continue
		}
		switch tx.AffectedBalance {
		case BalanceEarnings:
			replayed.Earnings += tx.Amount
		case BalanceFee:
			replayed.Fee += tx.Amount
		}
	}

	stored, _ := r.Balances(ctx, "w1")
	if replayed != stored {
		t.Fatalf("replayed %+v does not match stored %+v", replayed, stored)
	}
}

func TestConcurrentAppliesSerialize(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()
	SeedBalances(r, "w1", Balances{Earnings: 10_000})

	// 30 workers each try to debit 1000; only 10 can succeed against the
	// seeded balance, the rest must see insufficient funds. Earnings must
	// never dip below zero.
	const workers = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Apply(ctx, ApplyInput{
				WalletID:        "w1",
				Kind:            KindWithdrawal,
				AffectedBalance: BalanceEarnings,
				Amount:          -1_000,
				IdempotencyKey:  fmt.Sprintf("wd-%d", i),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("worker %d unexpected error: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected 10 successful debits, got %d", succeeded)
	}
	bal, _ := r.Balances(ctx, "w1")
	if bal.Earnings != 0 {
		t.Fatalf("expected earnings 0, got %d", bal.Earnings)
	}
}

func TestConcurrentReplaySameKey(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Apply(ctx, ApplyInput{
				WalletID:        "w1",
				Kind:            KindInAppPayment,
				AffectedBalance: BalanceEarnings,
				Amount:          750,
				IdempotencyKey:  "same-event",
			}); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, _ := r.Balances(ctx, "w1")
	if bal.Earnings != 750 {
		t.Fatalf("expected one balance effect, got earnings %d", bal.Earnings)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.Apply(ctx, ApplyInput{
			WalletID: "w1", Kind: KindInAppPayment, AffectedBalance: BalanceEarnings,
			Amount: 100, IdempotencyKey: fmt.Sprintf("pay-%d", i),
		}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if _, err := r.Apply(ctx, ApplyInput{
		WalletID: "w1", Kind: KindCashJobFee, AffectedBalance: BalanceFee,
		Amount: -50, IdempotencyKey: "fee-0",
	}); err != nil {
		t.Fatalf("apply fee: %v", err)
	}

	byKind, err := r.List(ctx, "w1", Filter{Kind: KindCashJobFee}, Page{})
	if err != nil {
		t.Fatalf("list by kind: %v", err)
	}
	if len(byKind) != 1 {
		t.Fatalf("expected 1 fee row, got %d", len(byKind))
	}

	byBalance, err := r.List(ctx, "w1", Filter{AffectedBalance: BalanceEarnings}, Page{})
	if err != nil {
		t.Fatalf("list by balance: %v", err)
	}
	if len(byBalance) != 5 {
		t.Fatalf("expected 5 earnings rows, got %d", len(byBalance))
	}

	paged, err := r.List(ctx, "w1", Filter{}, Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(paged))
	}

	all, _ := r.List(ctx, "w1", Filter{}, Page{})
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("history not newest-first at index %d", i)
		}
	}

	future := time.Now().UTC().Add(time.Hour)
	none, err := r.List(ctx, "w1", Filter{From: future}, Page{})
	if err != nil {
		t.Fatalf("list future: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no rows after %v, got %d", future, len(none))
	}
}

func TestListClampsNegativeOffset(t *testing.T) {
	r := newRecorderWithWallet(t, "w1")
	ctx := context.Background()

	if _, err := r.Apply(ctx, ApplyInput{
		WalletID: "w1", Kind: KindInAppPayment, AffectedBalance: BalanceEarnings,
		Amount: 100, IdempotencyKey: "pay-0",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// A negative offset from an unchecked query parameter must behave like
	// zero, not slice out of range.
	txs, err := r.List(ctx, "w1", Filter{}, Page{Offset: -1})
	if err != nil {
		t.Fatalf("list with negative offset: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(txs))
	}

	past, err := r.List(ctx, "w1", Filter{}, Page{Offset: 5})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected no rows past the end, got %d", len(past))
	}
}

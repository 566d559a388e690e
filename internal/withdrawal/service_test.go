package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gigwallet/gigwallet/internal/eligibility"
	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/logging"
	"github.com/gigwallet/gigwallet/internal/notification"
	"github.com/gigwallet/gigwallet/internal/payout"
	"github.com/gigwallet/gigwallet/internal/wallet"
)

type recordingGateway struct {
	mu     sync.Mutex
	orders []payout.TransferOrder
}

func (g *recordingGateway) SubmitTransfer(_ context.Context, order payout.TransferOrder) (payout.Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, order)
	return payout.Submission{Reference: "ref-" + order.RequestID, Status: "accepted"}, nil
}

func (g *recordingGateway) submitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

type testNotifier struct {
	messages []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixture struct {
	recorder ledger.Recorder
	wallets  *wallet.Service
	gateway  *recordingGateway
	notifier *testNotifier
	svc      *Service
	acc      wallet.Account
}

func newFixture(t *testing.T, earnings int64) *fixture {
	t.Helper()
	recorder := ledger.NewInMemory()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), recorder, wallet.Defaults{
		Currency: "USD", FeeThreshold: -2_000, CooldownHours: 24,
	})
	ctx := context.Background()

	acc, err := wallets.GetOrCreate(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if err := wallets.MarkIdentityVerified(ctx, acc.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := wallets.UpdateBankDetails(ctx, acc.ID, wallet.BankDetails{
		HolderName: "Amina K", AccountNumber: "0011223344", BankName: "First Bank",
	}); err != nil {
		t.Fatalf("bank details: %v", err)
	}
	acc, _ = wallets.Get(ctx, acc.ID)
	ledger.SeedBalances(recorder, acc.ID, ledger.Balances{Earnings: earnings})

	gateway := &recordingGateway{}
	notifier := &testNotifier{}
	svc := NewService(NewMemoryRepository(), wallets, recorder, gateway, notifier, logging.Discard())
	return &fixture{recorder: recorder, wallets: wallets, gateway: gateway, notifier: notifier, svc: svc, acc: acc}
}

func (f *fixture) earnings(t *testing.T) int64 {
	t.Helper()
	bal, err := f.recorder.Balances(context.Background(), f.acc.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	return bal.Earnings
}

func TestRequestReservesFunds(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, f.acc.ID, 5_000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.DebitTransactionID == "" {
		t.Fatal("expected a debit transaction reference")
	}
	// Funds are reserved before any payout step.
	if got := f.earnings(t); got != 0 {
		t.Fatalf("expected earnings 0 after reservation, got %d", got)
	}

	txs, _ := f.recorder.List(ctx, f.acc.ID, ledger.Filter{Kind: ledger.KindWithdrawal}, ledger.Page{})
	if len(txs) != 1 {
		t.Fatalf("expected one debit row, got %d", len(txs))
	}

	// The cooldown window started.
	acc, _ := f.wallets.Get(ctx, f.acc.ID)
	if acc.LastWithdrawalAt == nil {
		t.Fatal("expected last withdrawal timestamp to be set")
	}
}

func TestRequestRejectedWhenUnverified(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	// Fresh wallet with balance but no verification.
	other, _ := f.wallets.GetOrCreate(ctx, uuid.NewString())
	ledger.SeedBalances(f.recorder, other.ID, ledger.Balances{Earnings: 5_000})

	_, err := f.svc.Request(ctx, other.ID, 5_000)
	var eligErr *EligibilityError
	if !errors.As(err, &eligErr) {
		t.Fatalf("expected eligibility error, got %v", err)
	}
	if eligErr.Decision.Reason != eligibility.ReasonIdentityUnverified {
		t.Fatalf("expected identity reason, got %s", eligErr.Decision.Reason)
	}

	bal, _ := f.recorder.Balances(ctx, other.ID)
	if bal.Earnings != 5_000 {
		t.Fatalf("balance changed on rejected request: %d", bal.Earnings)
	}
}

func TestRequestSnapshotsBankDetails(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, f.acc.ID, 1_000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Changing the wallet's bank details must not alter the pending request.
	if err := f.wallets.UpdateBankDetails(ctx, f.acc.ID, wallet.BankDetails{
		HolderName: "Someone Else", AccountNumber: "9999999999", BankName: "Other Bank",
	}); err != nil {
		t.Fatalf("update bank details: %v", err)
	}

	stored, _ := f.svc.Get(ctx, req.ID)
	if stored.BankDetails.AccountNumber != "0011223344" {
		t.Fatalf("bank snapshot mutated: %+v", stored.BankDetails)
	}
}

func TestCooldownBlocksSecondRequest(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()

	if _, err := f.svc.Request(ctx, f.acc.ID, 1_000); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := f.svc.Request(ctx, f.acc.ID, 1_000)
	var eligErr *EligibilityError
	if !errors.As(err, &eligErr) {
		t.Fatalf("expected eligibility error, got %v", err)
	}
	if eligErr.Decision.Reason != eligibility.ReasonCooldownActive {
		t.Fatalf("expected cooldown reason, got %s", eligErr.Decision.Reason)
	}

	// Balance sufficiency does not override the cooldown.
	if got := f.earnings(t); got != 9_000 {
		t.Fatalf("expected earnings 9000, got %d", got)
	}
}

func TestFailedWithdrawalRestoresBalance(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, f.acc.ID, 5_000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.BeginProcessing(ctx, req.ID); err != nil {
		t.Fatalf("begin processing: %v", err)
	}

	failed, err := f.svc.MarkFailed(ctx, req.ID, "bank rejected")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason != "bank rejected" {
		t.Fatalf("unexpected reason: %q", failed.FailureReason)
	}
	if failed.CompensationTransactionID == "" {
		t.Fatal("expected a compensation transaction reference")
	}

	// Balance is back where it was before the request.
	if got := f.earnings(t); got != 5_000 {
		t.Fatalf("expected earnings restored to 5000, got %d", got)
	}
	reversals, _ := f.recorder.List(ctx, f.acc.ID, ledger.Filter{Kind: ledger.KindWithdrawalReversal}, ledger.Page{})
	if len(reversals) != 1 {
		t.Fatalf("expected one reversal row, got %d", len(reversals))
	}

	if len(f.notifier.messages) == 0 || f.notifier.messages[len(f.notifier.messages)-1].Kind != notification.KindWithdrawalFailed {
		t.Fatal("expected a withdrawal failed notification")
	}
}

func TestCancelRestoresBalance(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, f.acc.ID, 2_000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := f.earnings(t); got != 1_000 {
		t.Fatalf("expected earnings 1000 after reservation, got %d", got)
	}

	cancelled, err := f.svc.Cancel(ctx, req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := f.earnings(t); got != 3_000 {
		t.Fatalf("expected earnings restored to 3000, got %d", got)
	}

	// Cancelling twice is a safe retry.
	if _, err := f.svc.Cancel(ctx, req.ID); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if got := f.earnings(t); got != 3_000 {
		t.Fatalf("repeat cancel changed balance: %d", got)
	}
}

func TestCancelRejectedOnceProcessing(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, _ := f.svc.Request(ctx, f.acc.ID, 1_000)
	if _, err := f.svc.BeginProcessing(ctx, req.ID); err != nil {
		t.Fatalf("begin processing: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, req.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestBeginProcessingIdempotentAndSubmitsOnce(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, _ := f.svc.Request(ctx, f.acc.ID, 1_000)

	first, err := f.svc.BeginProcessing(ctx, req.ID)
	if err != nil {
		t.Fatalf("begin processing: %v", err)
	}
	if first.Status != StatusProcessing || first.PayoutReference == "" {
		t.Fatalf("unexpected processing state: %+v", first)
	}

	second, err := f.svc.BeginProcessing(ctx, req.ID)
	if err != nil {
		t.Fatalf("repeat begin processing: %v", err)
	}
	if second.PayoutReference != first.PayoutReference {
		t.Fatalf("payout reference changed on repeat: %s vs %s", second.PayoutReference, first.PayoutReference)
	}
	if got := f.gateway.submitted(); got != 1 {
		t.Fatalf("expected one transfer submission, got %d", got)
	}
}

func TestConcurrentBeginProcessingSubmitsOnce(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, f.acc.ID, 1_000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Racing pickup signals: only the claim winner may reach the executor.
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BeginProcessing(ctx, req.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("begin processing: %v", err)
		}
	}

	if got := f.gateway.submitted(); got != 1 {
		t.Fatalf("expected exactly one transfer submission, got %d", got)
	}
	stored, err := f.svc.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
}

func TestSettlementSignalsValidateState(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, _ := f.svc.Request(ctx, f.acc.ID, 1_000)

	// Settlement signals before processing are out of order.
	if _, err := f.svc.MarkCompleted(ctx, req.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition for early completion, got %v", err)
	}
	if _, err := f.svc.MarkFailed(ctx, req.ID, "late"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition for early failure, got %v", err)
	}

	if _, err := f.svc.BeginProcessing(ctx, req.ID); err != nil {
		t.Fatalf("begin processing: %v", err)
	}
	done, err := f.svc.MarkCompleted(ctx, req.ID)
	if err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completion state: %+v", done)
	}
	// Completion keeps the debit; nothing was restored.
	if got := f.earnings(t); got != 2_000 {
		t.Fatalf("expected earnings 2000, got %d", got)
	}

	// A failure signal after completion contradicts the settled state.
	if _, err := f.svc.MarkFailed(ctx, req.ID, "conflicting signal"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition after completion, got %v", err)
	}
	// Repeating the completion signal is a safe retry.
	if _, err := f.svc.MarkCompleted(ctx, req.ID); err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
}

func TestMarkFailedRetrySafe(t *testing.T) {
	f := newFixture(t, 3_000)
	ctx := context.Background()

	req, _ := f.svc.Request(ctx, f.acc.ID, 1_000)
	f.svc.BeginProcessing(ctx, req.ID)
	if _, err := f.svc.MarkFailed(ctx, req.ID, "bank rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := f.svc.MarkFailed(ctx, req.ID, "bank rejected"); err != nil {
		t.Fatalf("retry mark failed: %v", err)
	}
	// The retry replayed the same reversal; funds restored exactly once.
	if got := f.earnings(t); got != 3_000 {
		t.Fatalf("expected earnings 3000, got %d", got)
	}
}

func TestCheckEligibilityReservesNothing(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	dec, err := f.svc.CheckEligibility(ctx, f.acc.ID, 5_000)
	if err != nil {
		t.Fatalf("check eligibility: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed, got %+v", dec)
	}

	dec, err = f.svc.CheckEligibility(ctx, f.acc.ID, 6_000)
	if err != nil {
		t.Fatalf("check eligibility: %v", err)
	}
	if dec.Allowed || dec.Reason != eligibility.ReasonInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %+v", dec)
	}

	// A preview never touches the balance or starts a cooldown.
	if got := f.earnings(t); got != 5_000 {
		t.Fatalf("preview changed balance: %d", got)
	}
	acc, _ := f.wallets.Get(ctx, f.acc.ID)
	if acc.LastWithdrawalAt != nil {
		t.Fatal("preview started a cooldown")
	}
}

type cooldownFailRepo struct {
	wallet.Repository
}

func (cooldownFailRepo) SetLastWithdrawalAt(context.Context, string, time.Time) error {
	return errors.New("store unavailable")
}

func TestRequestFailsWhenCooldownStampFails(t *testing.T) {
	recorder := ledger.NewInMemory()
	wallets := wallet.NewService(cooldownFailRepo{wallet.NewMemoryRepository()}, recorder, wallet.Defaults{
		Currency: "USD", FeeThreshold: -2_000, CooldownHours: 24,
	})
	ctx := context.Background()

	acc, err := wallets.GetOrCreate(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if err := wallets.MarkIdentityVerified(ctx, acc.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := wallets.UpdateBankDetails(ctx, acc.ID, wallet.BankDetails{
		HolderName: "Amina K", AccountNumber: "0011223344", BankName: "First Bank",
	}); err != nil {
		t.Fatalf("bank details: %v", err)
	}
	ledger.SeedBalances(recorder, acc.ID, ledger.Balances{Earnings: 5_000})

	svc := NewService(NewMemoryRepository(), wallets, recorder, &recordingGateway{}, &testNotifier{}, logging.Discard())

	// A withdrawal whose cooldown cannot be stamped must not go through,
	// and the reserved funds must come back.
	if _, err := svc.Request(ctx, acc.ID, 1_000); err == nil {
		t.Fatal("expected request to fail when the cooldown stamp fails")
	}
	bal, err := recorder.Balances(ctx, acc.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal.Earnings != 5_000 {
		t.Fatalf("expected earnings restored to 5000, got %d", bal.Earnings)
	}
}

func TestRequestUnknownWallet(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.svc.Request(context.Background(), uuid.NewString(), 100); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

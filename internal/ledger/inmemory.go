package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryRecorder struct {
	mu       sync.RWMutex
	balances map[string]Balances
	byKey    map[string]Transaction
	log      map[string][]Transaction
}

// NewInMemory creates a concurrency-safe in-memory recorder useful for unit
// tests and running the API without Postgres.
func NewInMemory() Recorder {
	return &inMemoryRecorder{
		balances: make(map[string]Balances),
		byKey:    make(map[string]Transaction),
		log:      make(map[string][]Transaction),
	}
}

func dedupKey(walletID, idempotencyKey string) string {
	return walletID + "\x00" + idempotencyKey
}

func (r *inMemoryRecorder) EnsureWallet(_ context.Context, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.balances[walletID]; !exists {
		r.balances[walletID] = Balances{}
	}
	return nil
}

func (r *inMemoryRecorder) Apply(_ context.Context, input ApplyInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Dedup check lives inside the critical section so two retries of the
	// same logical event cannot both pass it.
	if existing, ok := r.byKey[dedupKey(input.WalletID, input.IdempotencyKey)]; ok {
		return existing, nil
	}

	bal, ok := r.balances[input.WalletID]
	if !ok {
		return Transaction{}, ErrWalletNotFound
	}

	switch input.AffectedBalance {
	case BalanceEarnings:
		if bal.Earnings+input.Amount < 0 {
			return Transaction{}, ErrInsufficientFunds
		}
		bal.Earnings += input.Amount
	case BalanceFee:
		bal.Fee += input.Amount
	}

	tx := Transaction{
		ID:                   uuid.NewString(),
		WalletID:             input.WalletID,
		IdempotencyKey:       input.IdempotencyKey,
		Kind:                 input.Kind,
		AffectedBalance:      input.AffectedBalance,
		Amount:               input.Amount,
		Description:          input.Description,
		SourceReferenceID:    input.SourceReferenceID,
		Status:               StatusCompleted,
		EarningsBalanceAfter: bal.Earnings,
		FeeBalanceAfter:      bal.Fee,
		CreatedAt:            time.Now().UTC(),
	}

	r.balances[input.WalletID] = bal
	r.byKey[dedupKey(input.WalletID, input.IdempotencyKey)] = tx
	r.log[input.WalletID] = append(r.log[input.WalletID], tx)
	return tx, nil
}

func (r *inMemoryRecorder) Balances(_ context.Context, walletID string) (Balances, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bal, ok := r.balances[walletID]
	if !ok {
		return Balances{}, ErrWalletNotFound
	}
	return bal, nil
}

func (r *inMemoryRecorder) List(_ context.Context, walletID string, filter Filter, page Page) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.balances[walletID]; !ok {
		return nil, ErrWalletNotFound
	}

	matched := make([]Transaction, 0)
	for _, tx := range r.log[walletID] {
		if filter.matches(tx) {
			matched = append(matched, tx)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.offset() >= len(matched) {
		return []Transaction{}, nil
	}
	matched = matched[page.offset():]
	if limit := page.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

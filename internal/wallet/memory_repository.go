package wallet

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byOwner map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// database-less runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]Account),
		byOwner: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOwner[account.OwnerID]; exists {
		return ErrAlreadyExists
	}
	r.byID[account.ID] = account
	r.byOwner[account.OwnerID] = account.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acc, nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, ownerID string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) UpdateBankDetails(_ context.Context, id string, details BankDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	copied := details
	acc.BankDetails = &copied
	acc.UpdatedAt = time.Now().UTC()
	r.byID[id] = acc
	return nil
}

func (r *memoryRepository) MarkIdentityVerified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	acc.IdentityVerified = true
	if acc.IdentityVerifiedAt == nil {
		stamp := at.UTC()
		acc.IdentityVerifiedAt = &stamp
	}
	acc.UpdatedAt = time.Now().UTC()
	r.byID[id] = acc
	return nil
}

func (r *memoryRepository) SetLastWithdrawalAt(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	stamp := at.UTC()
	acc.LastWithdrawalAt = &stamp
	acc.UpdatedAt = time.Now().UTC()
	r.byID[id] = acc
	return nil
}

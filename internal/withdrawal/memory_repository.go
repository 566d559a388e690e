package withdrawal

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for tests and
// database-less runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[req.ID] = req
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.storage[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryRepository) Update(_ context.Context, req Request, expect Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expect {
		return ErrStatusConflict
	}
	r.storage[req.ID] = req
	return nil
}

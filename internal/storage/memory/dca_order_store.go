package memory

import (
	"context"
	"sync"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// DcaOrderStore is an in-memory implementation of storage.DcaOrderStore.
type DcaOrderStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.DcaOrder
}

// NewDcaOrderStore creates a new in-memory DCA order store.
func NewDcaOrderStore() *DcaOrderStore {
	return &DcaOrderStore{
		data: make(map[uint64]*domain.DcaOrder),
	}
}

// Compile-time interface check.
var _ storage.DcaOrderStore = (*DcaOrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if the id exists.
func (s *DcaOrderStore) Insert(_ context.Context, o *domain.DcaOrder) error {
	if o == nil || o.Owner == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *o
	s.data[o.ID] = &cp
	return nil
}

// Get retrieves an order by id.
func (s *DcaOrderStore) Get(_ context.Context, id uint64) (*domain.DcaOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// Update replaces the mutable fields of an existing order.
func (s *DcaOrderStore) Update(_ context.Context, o *domain.DcaOrder) error {
	if o == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.ID]; !exists {
		return storage.ErrNotFound
	}

	cp := *o
	s.data[o.ID] = &cp
	return nil
}

// RecordExecution increments the execution counter, completing the order
// once all executions have been observed.
func (s *DcaOrderStore) RecordExecution(_ context.Context, id uint64, executedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}

	o.Executed++
	o.UpdatedAt = executedAt
	if o.Executed >= o.NbExecutions && o.Status == domain.DcaStatusActive {
		o.Status = domain.DcaStatusCompleted
	}
	return nil
}

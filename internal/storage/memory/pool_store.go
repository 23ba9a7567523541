package memory

import (
	"context"
	"sort"
	"sync"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Pool // keyed by address
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[string]*domain.Pool),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Insert adds a new pool. Returns ErrDuplicateKey if the address exists.
func (s *PoolStore) Insert(_ context.Context, p *domain.Pool) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Address]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[p.Address] = &cp
	return nil
}

// GetByAddress retrieves a pool by address.
func (s *PoolStore) GetByAddress(_ context.Context, address string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// List retrieves all pools ordered by created_at ASC.
func (s *PoolStore) List(_ context.Context) ([]*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Pool, 0, len(s.data))
	for _, p := range s.data {
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

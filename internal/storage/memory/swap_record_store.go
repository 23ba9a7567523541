package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// SwapRecordStore is an in-memory implementation of storage.SwapRecordStore.
type SwapRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SwapRecord // keyed by composite key
	nextID int64
}

// NewSwapRecordStore creates a new in-memory swap record store.
func NewSwapRecordStore() *SwapRecordStore {
	return &SwapRecordStore{
		data: make(map[string]*domain.SwapRecord),
	}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

func recordKey(poolAddress, txHash string, eventIndex int) string {
	return fmt.Sprintf("%s|%s|%d", poolAddress, txHash, eventIndex)
}

// Insert adds a new swap record. Returns ErrDuplicateKey if exists.
func (s *SwapRecordStore) Insert(_ context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.PoolAddress == "" || rec.TxHash == "" {
		return storage.ErrInvalidInput
	}

	key := recordKey(rec.PoolAddress, rec.TxHash, rec.EventIndex)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	cp := *rec
	cp.ID = s.nextID
	s.data[key] = &cp
	return nil
}

// GetRecent retrieves the latest n records for a pool, newest first.
func (s *SwapRecordStore) GetRecent(_ context.Context, poolAddress string, n int) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapRecord
	for _, rec := range s.data {
		if rec.PoolAddress == poolAddress {
			cp := *rec
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].EventIndex > result[j].EventIndex
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

// GetUserActivity retrieves the timestamps of a user's swaps.
func (s *SwapRecordStore) GetUserActivity(_ context.Context, userAddress string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []int64
	for _, rec := range s.data {
		if rec.UserAddress == userAddress {
			result = append(result, rec.Timestamp)
		}
	}
	return result, nil
}

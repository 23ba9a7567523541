package memory

import (
	"context"
	"sort"
	"sync"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// LiquidityRecordStore is an in-memory implementation of
// storage.LiquidityRecordStore.
type LiquidityRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.LiquidityRecord
	nextID int64
}

// NewLiquidityRecordStore creates a new in-memory liquidity record store.
func NewLiquidityRecordStore() *LiquidityRecordStore {
	return &LiquidityRecordStore{
		data: make(map[string]*domain.LiquidityRecord),
	}
}

// Compile-time interface check.
var _ storage.LiquidityRecordStore = (*LiquidityRecordStore)(nil)

// Insert adds a new liquidity record. Returns ErrDuplicateKey if exists.
func (s *LiquidityRecordStore) Insert(_ context.Context, rec *domain.LiquidityRecord) error {
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
func (s *LiquidityRecordStore) GetRecent(_ context.Context, poolAddress string, n int) ([]*domain.LiquidityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LiquidityRecord
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

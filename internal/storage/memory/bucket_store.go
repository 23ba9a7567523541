package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// BucketStore is an in-memory implementation of storage.BucketStore.
type BucketStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AnalyticsBucket // keyed by pool|bucketStart
}

// NewBucketStore creates a new in-memory bucket store.
func NewBucketStore() *BucketStore {
	return &BucketStore{
		data: make(map[string]*domain.AnalyticsBucket),
	}
}

// Compile-time interface check.
var _ storage.BucketStore = (*BucketStore)(nil)

func bucketKey(poolAddress string, bucketStart int64) string {
	return fmt.Sprintf("%s|%d", poolAddress, bucketStart)
}

// UpsertIncrement applies one atomic seed-or-update to a bucket.
func (s *BucketStore) UpsertIncrement(_ context.Context, u storage.BucketUpdate) error {
	if u.PoolAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(u.PoolAddress, u.BucketStart)
	b, ok := s.data[key]
	if !ok {
		b = &domain.AnalyticsBucket{
			PoolAddress: u.PoolAddress,
			BucketStart: u.BucketStart,
			Open:        u.Price,
			High:        u.Price,
			Low:         u.Price,
			Close:       u.Price,
		}
		s.data[key] = b
	}

	b.Close = u.Price
	if u.Price > b.High {
		b.High = u.Price
	}
	if u.Price < b.Low {
		b.Low = u.Price
	}
	b.VolumeUsd += u.VolumeUsdDelta
	b.FeesUsd += u.FeesUsdDelta
	b.Token0Locked += u.Token0Delta
	b.Token1Locked += u.Token1Delta
	b.UsdLocked += u.UsdLockedDelta

	return nil
}

// Get retrieves one bucket.
func (s *BucketStore) Get(_ context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[bucketKey(poolAddress, bucketStart)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// GetRange retrieves buckets for a pool within [start, end], ordered by
// bucket_start ASC.
func (s *BucketStore) GetRange(_ context.Context, poolAddress string, start, end int64) ([]*domain.AnalyticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnalyticsBucket
	for _, b := range s.data {
		if b.PoolAddress == poolAddress && b.BucketStart >= start && b.BucketStart <= end {
			cp := *b
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	return result, nil
}

// GetLastN retrieves the most recent n buckets, ordered by bucket_start ASC.
func (s *BucketStore) GetLastN(_ context.Context, poolAddress string, n int) ([]*domain.AnalyticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnalyticsBucket
	for _, b := range s.data {
		if b.PoolAddress == poolAddress {
			cp := *b
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	if n > 0 && len(result) > n {
		result = result[len(result)-n:]
	}
	return result, nil
}

// LatestBefore retrieves the most recent bucket strictly before bucketStart.
func (s *BucketStore) LatestBefore(_ context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.AnalyticsBucket
	for _, b := range s.data {
		if b.PoolAddress != poolAddress || b.BucketStart >= bucketStart {
			continue
		}
		if latest == nil || b.BucketStart > latest.BucketStart {
			latest = b
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

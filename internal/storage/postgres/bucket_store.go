package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// BucketStore implements storage.BucketStore using PostgreSQL.
type BucketStore struct {
	pool *Pool
}

// NewBucketStore creates a new BucketStore.
func NewBucketStore(pool *Pool) *BucketStore {
	return &BucketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BucketStore = (*BucketStore)(nil)

// UpsertIncrement applies one atomic seed-or-update to a bucket.
// The whole transition runs inside a single INSERT .. ON CONFLICT
// statement so concurrent writers to the same bucket never lose updates.
func (s *BucketStore) UpsertIncrement(ctx context.Context, u storage.BucketUpdate) error {
	if u.PoolAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO analytics_buckets (
			pool_address, bucket_start,
			open, high, low, close,
			volume_usd, fees_usd,
			token0_locked, token1_locked, usd_locked
		) VALUES ($1, $2, $3, $3, $3, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pool_address, bucket_start) DO UPDATE SET
			close         = EXCLUDED.close,
			high          = GREATEST(analytics_buckets.high, EXCLUDED.close),
			low           = LEAST(analytics_buckets.low, EXCLUDED.close),
			volume_usd    = analytics_buckets.volume_usd + EXCLUDED.volume_usd,
			fees_usd      = analytics_buckets.fees_usd + EXCLUDED.fees_usd,
			token0_locked = analytics_buckets.token0_locked + EXCLUDED.token0_locked,
			token1_locked = analytics_buckets.token1_locked + EXCLUDED.token1_locked,
			usd_locked    = analytics_buckets.usd_locked + EXCLUDED.usd_locked
	`

	_, err := s.pool.Exec(ctx, query,
		u.PoolAddress,
		u.BucketStart,
		u.Price,
		u.VolumeUsdDelta,
		u.FeesUsdDelta,
		u.Token0Delta,
		u.Token1Delta,
		u.UsdLockedDelta,
	)
	if err != nil {
		return fmt.Errorf("upsert analytics bucket: %w", err)
	}
	return nil
}

const bucketColumns = `
	pool_address, bucket_start, open, high, low, close,
	volume_usd, fees_usd, token0_locked, token1_locked, usd_locked
`

// Get retrieves one bucket. Returns ErrNotFound if it does not exist.
func (s *BucketStore) Get(ctx context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM analytics_buckets
		WHERE pool_address = $1 AND bucket_start = $2
	`

	row := s.pool.QueryRow(ctx, query, poolAddress, bucketStart)
	b, err := scanBucket(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get analytics bucket: %w", err)
	}
	return b, nil
}

// GetRange retrieves buckets for a pool within [start, end], ordered by
// bucket_start ASC.
func (s *BucketStore) GetRange(ctx context.Context, poolAddress string, start, end int64) ([]*domain.AnalyticsBucket, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM analytics_buckets
		WHERE pool_address = $1 AND bucket_start >= $2 AND bucket_start <= $3
		ORDER BY bucket_start ASC
	`

	rows, err := s.pool.Query(ctx, query, poolAddress, start, end)
	if err != nil {
		return nil, fmt.Errorf("get bucket range: %w", err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// GetLastN retrieves the most recent n buckets, ordered by bucket_start ASC.
func (s *BucketStore) GetLastN(ctx context.Context, poolAddress string, n int) ([]*domain.AnalyticsBucket, error) {
	query := `
		SELECT * FROM (
			SELECT ` + bucketColumns + `
			FROM analytics_buckets
			WHERE pool_address = $1
			ORDER BY bucket_start DESC
			LIMIT $2
		) latest
		ORDER BY bucket_start ASC
	`

	rows, err := s.pool.Query(ctx, query, poolAddress, n)
	if err != nil {
		return nil, fmt.Errorf("get last buckets: %w", err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// LatestBefore retrieves the most recent bucket strictly before bucketStart.
func (s *BucketStore) LatestBefore(ctx context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM analytics_buckets
		WHERE pool_address = $1 AND bucket_start < $2
		ORDER BY bucket_start DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, poolAddress, bucketStart)
	b, err := scanBucket(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest bucket before: %w", err)
	}
	return b, nil
}

func scanBucket(row pgx.Row) (*domain.AnalyticsBucket, error) {
	var b domain.AnalyticsBucket
	err := row.Scan(
		&b.PoolAddress,
		&b.BucketStart,
		&b.Open,
		&b.High,
		&b.Low,
		&b.Close,
		&b.VolumeUsd,
		&b.FeesUsd,
		&b.Token0Locked,
		&b.Token1Locked,
		&b.UsdLocked,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBuckets(rows pgx.Rows) ([]*domain.AnalyticsBucket, error) {
	var result []*domain.AnalyticsBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analytics bucket: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics buckets: %w", err)
	}
	return result, nil
}

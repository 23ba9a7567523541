package storage

import (
	"context"

	"binamm-indexer/internal/domain"
)

// BucketUpdate is one atomic upsert-with-increment against an
// analytics bucket. If the bucket does not exist it is seeded with
// open = high = low = close = Price; otherwise close is set to Price
// and high/low are extended. All deltas are added on top.
//
// The store must apply the whole update atomically (no application-side
// read-modify-write) so that live ingestion and scheduled jobs can touch
// the same bucket concurrently without lost updates.
type BucketUpdate struct {
	PoolAddress    string
	BucketStart    int64 // hour-aligned ms
	Price          float64
	VolumeUsdDelta float64
	FeesUsdDelta   float64
	Token0Delta    int64
	Token1Delta    int64
	UsdLockedDelta float64
}

// BucketStore provides access to analytics_buckets storage.
type BucketStore interface {
	// UpsertIncrement applies one atomic seed-or-update to a bucket.
	UpsertIncrement(ctx context.Context, u BucketUpdate) error

	// Get retrieves one bucket. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error)

	// GetRange retrieves buckets for a pool within [start, end], ordered
	// by bucket_start ASC.
	GetRange(ctx context.Context, poolAddress string, start, end int64) ([]*domain.AnalyticsBucket, error)

	// GetLastN retrieves the most recent n buckets for a pool, ordered by
	// bucket_start ASC.
	GetLastN(ctx context.Context, poolAddress string, n int) ([]*domain.AnalyticsBucket, error)

	// LatestBefore retrieves the most recent bucket strictly before the
	// given bucket start. Returns ErrNotFound if none exists.
	LatestBefore(ctx context.Context, poolAddress string, bucketStart int64) (*domain.AnalyticsBucket, error)
}

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Insert adds a new pool. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, p *domain.Pool) error

	// GetByAddress retrieves a pool. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Pool, error)

	// List retrieves all pools ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Pool, error)
}

// SwapRecordStore provides access to swap_records storage.
type SwapRecordStore interface {
	// Insert adds a new swap record. Returns ErrDuplicateKey if
	// (pool_address, tx_hash, event_index) exists.
	Insert(ctx context.Context, s *domain.SwapRecord) error

	// GetRecent retrieves the latest n records for a pool, ordered by
	// (timestamp, event_index) DESC.
	GetRecent(ctx context.Context, poolAddress string, n int) ([]*domain.SwapRecord, error)

	// GetUserActivity retrieves the timestamps of a user's swaps, any order.
	GetUserActivity(ctx context.Context, userAddress string) ([]int64, error)
}

// LiquidityRecordStore provides access to liquidity_records storage.
type LiquidityRecordStore interface {
	// Insert adds a new liquidity record. Returns ErrDuplicateKey if
	// (pool_address, tx_hash, event_index) exists.
	Insert(ctx context.Context, l *domain.LiquidityRecord) error

	// GetRecent retrieves the latest n records for a pool, ordered by
	// (timestamp, event_index) DESC.
	GetRecent(ctx context.Context, poolAddress string, n int) ([]*domain.LiquidityRecord, error)
}

// DcaOrderStore provides access to dca_orders storage. Orders are never
// deleted; lifecycle changes are status updates.
type DcaOrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, o *domain.DcaOrder) error

	// Get retrieves an order by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id uint64) (*domain.DcaOrder, error)

	// Update replaces the mutable fields of an existing order.
	// Returns ErrNotFound if the order does not exist.
	Update(ctx context.Context, o *domain.DcaOrder) error

	// RecordExecution increments the execution counter and transitions
	// the order to COMPLETED when all executions are done.
	// Returns ErrNotFound if the order does not exist.
	RecordExecution(ctx context.Context, id uint64, executedAt int64) error
}

// SwapArchiver receives accepted swap records for offline analytics.
// Implementations are best-effort: archive failures must never block
// ingestion.
type SwapArchiver interface {
	Archive(ctx context.Context, s *domain.SwapRecord) error
}

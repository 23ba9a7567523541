package postgres

import (
	"context"
	"fmt"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// LiquidityRecordStore implements storage.LiquidityRecordStore using
// PostgreSQL.
type LiquidityRecordStore struct {
	pool *Pool
}

// NewLiquidityRecordStore creates a new LiquidityRecordStore.
func NewLiquidityRecordStore(pool *Pool) *LiquidityRecordStore {
	return &LiquidityRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LiquidityRecordStore = (*LiquidityRecordStore)(nil)

// Insert adds a new liquidity record. Returns ErrDuplicateKey if
// (pool_address, tx_hash, event_index) exists.
func (s *LiquidityRecordStore) Insert(ctx context.Context, rec *domain.LiquidityRecord) error {
	if rec == nil || rec.PoolAddress == "" || rec.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO liquidity_records (
			pool_address, user_address, kind, bin_id,
			amount0, amount1, usd_value,
			timestamp, tx_hash, event_index, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.PoolAddress,
		rec.UserAddress,
		rec.Kind,
		rec.BinID,
		rec.Amount0,
		rec.Amount1,
		rec.UsdValue,
		rec.Timestamp,
		rec.TxHash,
		rec.EventIndex,
		rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert liquidity record: %w", err)
	}
	return nil
}

// GetRecent retrieves the latest n records for a pool, newest first.
func (s *LiquidityRecordStore) GetRecent(ctx context.Context, poolAddress string, n int) ([]*domain.LiquidityRecord, error) {
	query := `
		SELECT id, pool_address, user_address, kind, bin_id,
		       amount0, amount1, usd_value,
		       timestamp, tx_hash, event_index, created_at
		FROM liquidity_records
		WHERE pool_address = $1
		ORDER BY timestamp DESC, event_index DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, poolAddress, n)
	if err != nil {
		return nil, fmt.Errorf("get recent liquidity records: %w", err)
	}
	defer rows.Close()

	var result []*domain.LiquidityRecord
	for rows.Next() {
		var rec domain.LiquidityRecord
		err := rows.Scan(
			&rec.ID,
			&rec.PoolAddress,
			&rec.UserAddress,
			&rec.Kind,
			&rec.BinID,
			&rec.Amount0,
			&rec.Amount1,
			&rec.UsdValue,
			&rec.Timestamp,
			&rec.TxHash,
			&rec.EventIndex,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan liquidity record: %w", err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liquidity records: %w", err)
	}
	return result, nil
}

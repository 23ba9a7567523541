package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// SwapRecordStore implements storage.SwapRecordStore using PostgreSQL.
type SwapRecordStore struct {
	pool *Pool
}

// NewSwapRecordStore creates a new SwapRecordStore.
func NewSwapRecordStore(pool *Pool) *SwapRecordStore {
	return &SwapRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

// Insert adds a new swap record. Returns ErrDuplicateKey if
// (pool_address, tx_hash, event_index) exists.
func (s *SwapRecordStore) Insert(ctx context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.PoolAddress == "" || rec.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swap_records (
			pool_address, user_address, swap_for_y, bin_id,
			amount_in, amount_out, fees_raw, usd_value,
			timestamp, tx_hash, event_index, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.PoolAddress,
		rec.UserAddress,
		rec.SwapForY,
		rec.BinID,
		rec.AmountIn,
		rec.AmountOut,
		rec.FeesRaw,
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
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// GetRecent retrieves the latest n records for a pool, newest first.
func (s *SwapRecordStore) GetRecent(ctx context.Context, poolAddress string, n int) ([]*domain.SwapRecord, error) {
	query := `
		SELECT id, pool_address, user_address, swap_for_y, bin_id,
		       amount_in, amount_out, fees_raw, usd_value,
		       timestamp, tx_hash, event_index, created_at
		FROM swap_records
		WHERE pool_address = $1
		ORDER BY timestamp DESC, event_index DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, poolAddress, n)
	if err != nil {
		return nil, fmt.Errorf("get recent swap records: %w", err)
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

// GetUserActivity retrieves the timestamps of a user's swaps.
func (s *SwapRecordStore) GetUserActivity(ctx context.Context, userAddress string) ([]int64, error) {
	query := `SELECT timestamp FROM swap_records WHERE user_address = $1`

	rows, err := s.pool.Query(ctx, query, userAddress)
	if err != nil {
		return nil, fmt.Errorf("get user activity: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan activity timestamp: %w", err)
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity timestamps: %w", err)
	}
	return result, nil
}

func scanSwapRecords(rows pgx.Rows) ([]*domain.SwapRecord, error) {
	var result []*domain.SwapRecord
	for rows.Next() {
		var rec domain.SwapRecord
		err := rows.Scan(
			&rec.ID,
			&rec.PoolAddress,
			&rec.UserAddress,
			&rec.SwapForY,
			&rec.BinID,
			&rec.AmountIn,
			&rec.AmountOut,
			&rec.FeesRaw,
			&rec.UsdValue,
			&rec.Timestamp,
			&rec.TxHash,
			&rec.EventIndex,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap record: %w", err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap records: %w", err)
	}
	return result, nil
}

package clickhouse

import (
	"context"
	"fmt"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// SwapArchiveStore implements storage.SwapArchiver using ClickHouse.
// The archive is append-only; replayed rows are collapsed by the table's
// ReplacingMergeTree key, so writes need no duplicate check.
type SwapArchiveStore struct {
	conn *Conn
}

// NewSwapArchiveStore creates a new SwapArchiveStore.
func NewSwapArchiveStore(conn *Conn) *SwapArchiveStore {
	return &SwapArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapArchiver = (*SwapArchiveStore)(nil)

// Archive appends one swap record to the archive.
func (s *SwapArchiveStore) Archive(ctx context.Context, rec *domain.SwapRecord) error {
	query := `
		INSERT INTO swap_archive (
			pool_address, user_address, swap_for_y, bin_id,
			amount_in, amount_out, fees_raw, usd_value,
			timestamp, tx_hash, event_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	swapForY := uint8(0)
	if rec.SwapForY {
		swapForY = 1
	}

	err := s.conn.Exec(ctx, query,
		rec.PoolAddress,
		rec.UserAddress,
		swapForY,
		rec.BinID,
		rec.AmountIn,
		rec.AmountOut,
		rec.FeesRaw,
		rec.UsdValue,
		rec.Timestamp,
		rec.TxHash,
		int32(rec.EventIndex),
	)
	if err != nil {
		return fmt.Errorf("archive swap record: %w", err)
	}
	return nil
}

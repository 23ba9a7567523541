package postgres

import (
	"context"
	"fmt"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// DcaOrderStore implements storage.DcaOrderStore using PostgreSQL.
type DcaOrderStore struct {
	pool *Pool
}

// NewDcaOrderStore creates a new DcaOrderStore.
func NewDcaOrderStore(pool *Pool) *DcaOrderStore {
	return &DcaOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DcaOrderStore = (*DcaOrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if the id exists.
func (s *DcaOrderStore) Insert(ctx context.Context, o *domain.DcaOrder) error {
	if o == nil || o.Owner == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO dca_orders (
			id, owner, token_in, token_out,
			amount_each, interval_ms, nb_executions, executed,
			status, created_at, updated_at, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		int64(o.ID),
		o.Owner,
		o.TokenIn,
		o.TokenOut,
		o.AmountEach,
		o.IntervalMs,
		o.NbExecutions,
		o.Executed,
		o.Status,
		o.CreatedAt,
		o.UpdatedAt,
		o.TxHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert dca order: %w", err)
	}
	return nil
}

// Get retrieves an order by id. Returns ErrNotFound if not exists.
func (s *DcaOrderStore) Get(ctx context.Context, id uint64) (*domain.DcaOrder, error) {
	query := `
		SELECT id, owner, token_in, token_out,
		       amount_each, interval_ms, nb_executions, executed,
		       status, created_at, updated_at, tx_hash
		FROM dca_orders
		WHERE id = $1
	`

	var (
		o     domain.DcaOrder
		rawID int64
	)
	err := s.pool.QueryRow(ctx, query, int64(id)).Scan(
		&rawID,
		&o.Owner,
		&o.TokenIn,
		&o.TokenOut,
		&o.AmountEach,
		&o.IntervalMs,
		&o.NbExecutions,
		&o.Executed,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.TxHash,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get dca order: %w", err)
	}
	o.ID = uint64(rawID)
	return &o, nil
}

// Update replaces the mutable fields of an existing order.
func (s *DcaOrderStore) Update(ctx context.Context, o *domain.DcaOrder) error {
	if o == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE dca_orders
		SET token_in = $2, token_out = $3,
		    amount_each = $4, interval_ms = $5, nb_executions = $6,
		    executed = $7, status = $8, updated_at = $9
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		int64(o.ID),
		o.TokenIn,
		o.TokenOut,
		o.AmountEach,
		o.IntervalMs,
		o.NbExecutions,
		o.Executed,
		o.Status,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dca order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordExecution increments the execution counter and completes the
// order once all executions are observed. Runs as one statement so
// concurrent execution events cannot lose counts.
func (s *DcaOrderStore) RecordExecution(ctx context.Context, id uint64, executedAt int64) error {
	query := `
		UPDATE dca_orders
		SET executed = executed + 1,
		    updated_at = $2,
		    status = CASE
		        WHEN status = $3 AND executed + 1 >= nb_executions THEN $4
		        ELSE status
		    END
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, int64(id), executedAt,
		domain.DcaStatusActive, domain.DcaStatusCompleted)
	if err != nil {
		return fmt.Errorf("record dca execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Insert adds a new pool. Returns ErrDuplicateKey if the address exists.
func (s *PoolStore) Insert(ctx context.Context, p *domain.Pool) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pools (
			address, bin_step,
			token0_address, token0_symbol, token0_decimals,
			token1_address, token1_symbol, token1_decimals,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		p.Address,
		p.BinStep,
		p.Token0.Address, p.Token0.Symbol, p.Token0.Decimals,
		p.Token1.Address, p.Token1.Symbol, p.Token1.Decimals,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

const poolColumns = `
	address, bin_step,
	token0_address, token0_symbol, token0_decimals,
	token1_address, token1_symbol, token1_decimals,
	created_at
`

// GetByAddress retrieves a pool. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByAddress(ctx context.Context, address string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, address)
	p, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

// List retrieves all pools ordered by created_at ASC.
func (s *PoolStore) List(ctx context.Context) ([]*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var result []*domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return result, nil
}

func scanPool(row pgx.Row) (*domain.Pool, error) {
	var p domain.Pool
	err := row.Scan(
		&p.Address,
		&p.BinStep,
		&p.Token0.Address, &p.Token0.Symbol, &p.Token0.Decimals,
		&p.Token1.Address, &p.Token1.Symbol, &p.Token1.Decimals,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

package domain

// Liquidity record kinds.
const (
	LiquidityDeposit  = "deposit"
	LiquidityWithdraw = "withdraw"
)

// LiquidityRecord is an immutable fact for one decoded liquidity event.
// Corresponds to liquidity_records table in PostgreSQL, unique on
// (pool_address, tx_hash, event_index).
//
// Amount0/Amount1 are signed deltas: positive for deposits, negative for
// withdrawals. The sign is determined by the call direction, not by the
// event payload.
type LiquidityRecord struct {
	ID          int64
	PoolAddress string
	UserAddress string
	Kind        string // LiquidityDeposit | LiquidityWithdraw
	BinID       uint32
	Amount0     int64 // signed raw delta (fixed-point, 9 decimals)
	Amount1     int64
	UsdValue    float64 // signed USD delta, 0 if unvalued
	Timestamp   int64   // Unix timestamp in milliseconds
	TxHash      string
	EventIndex  int
	CreatedAt   int64
}

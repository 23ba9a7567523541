package domain

// SwapRecord is an immutable fact for one decoded swap event.
// Corresponds to swap_records table in PostgreSQL, unique on
// (pool_address, tx_hash, event_index) for replay de-duplication.
type SwapRecord struct {
	ID          int64  // BIGSERIAL primary key
	PoolAddress string // emitting pair contract
	UserAddress string // swap recipient
	SwapForY    bool   // true: token0 in, token1 out
	BinID       uint32 // active bin after the swap
	AmountIn    int64  // raw input amount (fixed-point, 9 decimals)
	AmountOut   int64  // raw output amount
	FeesRaw     int64  // raw fee amount, denominated in the input token
	UsdValue    float64
	Timestamp   int64  // Unix timestamp in milliseconds
	TxHash      string // operation id on chain
	EventIndex  int    // position within the operation's event batch
	CreatedAt   int64  // record creation timestamp (ms)
}

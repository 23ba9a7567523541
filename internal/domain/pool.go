package domain

// Token describes one side of a trading pair.
type Token struct {
	Address  string
	Symbol   string
	Decimals uint8
}

// Pool is one liquidity-bin trading pair. Corresponds to pools table in
// PostgreSQL. Token0/Token1 are ordered canonically by address so the
// same pair always maps to the same row regardless of discovery order.
type Pool struct {
	Address   string // pair contract address
	BinStep   uint32 // fee/price step in basis points
	Token0    Token
	Token1    Token
	CreatedAt int64 // ms
}

// NewPool builds a pool with the canonical token ordering
// (Token0.Address < Token1.Address).
func NewPool(address string, binStep uint32, token0, token1 Token, createdAt int64) *Pool {
	if token1.Address < token0.Address {
		token0, token1 = token1, token0
	}
	return &Pool{
		Address:   address,
		BinStep:   binStep,
		Token0:    token0,
		Token1:    token1,
		CreatedAt: createdAt,
	}
}

// Package valuation resolves a token's USD unit value through a
// best-execution routing collaborator.
package valuation

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxHops bounds the routing path length for quotes.
const DefaultMaxHops = 3

// oneUnit is one whole token in raw fixed-point representation
// (9 decimals).
const oneUnit = int64(1_000_000_000)

// ErrUnknownToken is returned when no route to the stable reference
// exists or the quote is unusable. Callers skip USD-denominated updates
// for that token; the error is deliberately distinct from a legitimate
// zero price.
var ErrUnknownToken = errors.New("token value unknown")

// Quote is the routing collaborator's answer for one path query.
type Quote struct {
	// ExecutionPrice is the output-per-input price of executing the
	// quoted path with the given input amount.
	ExecutionPrice float64
}

// Router finds the best execution path between two tokens.
type Router interface {
	FindBestPath(ctx context.Context, tokenIn, tokenOut string, amountIn int64, maxHops int) (Quote, error)
}

// Service resolves token USD values. The configured stable reference
// token is worth exactly 1; everything else is quoted against it.
type Service struct {
	router      Router
	stableToken string
	maxHops     int
}

// NewService creates a valuation service. maxHops <= 0 selects
// DefaultMaxHops.
func NewService(router Router, stableToken string, maxHops int) *Service {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Service{
		router:      router,
		stableToken: stableToken,
		maxHops:     maxHops,
	}
}

// TokenValue returns the USD value of one whole unit of the token.
// Returns ErrUnknownToken when the token cannot be valued.
func (s *Service) TokenValue(ctx context.Context, token string) (float64, error) {
	if token == s.stableToken {
		return 1.0, nil
	}
	if s.router == nil {
		return 0, ErrUnknownToken
	}

	quote, err := s.router.FindBestPath(ctx, token, s.stableToken, oneUnit, s.maxHops)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnknownToken, token, err)
	}
	if quote.ExecutionPrice <= 0 {
		return 0, fmt.Errorf("%w: %s: no usable quote", ErrUnknownToken, token)
	}
	return quote.ExecutionPrice, nil
}

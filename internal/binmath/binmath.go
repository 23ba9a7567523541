// Package binmath converts between discrete liquidity-bin ids and prices.
//
// A pair's price space is quantized into bins: adjacent bins differ by a
// fixed ratio of (1 + binStep/10000). Bin id 2^17 is centered at price 1,
// so price(binID) = (1 + binStep/10000)^(binID - 2^17).
package binmath

import (
	"errors"
	"math"
)

// RealIDShift centers bin id 2^17 at price 1.
const RealIDShift = 1 << 17

var (
	// ErrInvalidBinStep is returned for a zero bin step (ln(1) = 0 makes
	// the inverse undefined).
	ErrInvalidBinStep = errors.New("bin step must be positive")

	// ErrInvalidPrice is returned for a non-positive price.
	ErrInvalidPrice = errors.New("price must be positive")
)

// PriceFromBinID returns the token1-per-token0 price of a bin.
func PriceFromBinID(binID uint32, binStepBps uint32) (float64, error) {
	if binStepBps == 0 {
		return 0, ErrInvalidBinStep
	}
	ratio := 1 + float64(binStepBps)/10000
	return math.Pow(ratio, float64(int64(binID)-RealIDShift)), nil
}

// BinIDFromPrice returns the bin id whose price is closest to the given
// price. Inverse of PriceFromBinID: for any valid id and binStepBps > 0,
// BinIDFromPrice(PriceFromBinID(id, bs), bs) == id.
func BinIDFromPrice(price float64, binStepBps uint32) (uint32, error) {
	if binStepBps == 0 {
		return 0, ErrInvalidBinStep
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, ErrInvalidPrice
	}
	ratio := 1 + float64(binStepBps)/10000
	id := math.Round(math.Log(price)/math.Log(ratio)) + RealIDShift
	if id < 0 || id > math.MaxUint32 {
		return 0, ErrInvalidPrice
	}
	return uint32(id), nil
}

package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Swap(t *testing.T) {
	payload := "SWAP:AU1recipient,8388731,true,100,95,12,1"

	got, err := DecodeEvent(payload)
	require.NoError(t, err)

	swap, ok := got.(SwapEvent)
	require.True(t, ok, "expected SwapEvent, got %T", got)
	assert.Equal(t, "AU1recipient", swap.Recipient)
	assert.Equal(t, uint32(8388731), swap.BinID)
	assert.True(t, swap.SwapForY)
	assert.Equal(t, int64(100), swap.AmountIn)
	assert.Equal(t, int64(95), swap.AmountOut)
	assert.Equal(t, uint32(12), swap.VolatilityAccumulated)
	assert.Equal(t, int64(1), swap.TotalFees)
}

func TestDecodeEvent_SwapFieldCountMismatch(t *testing.T) {
	_, err := DecodeEvent("SWAP:AU1recipient,8388731,true,100")
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecodeEvent_SwapBadNumber(t *testing.T) {
	_, err := DecodeEvent("SWAP:AU1recipient,notanumber,true,100,95,12,1")
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecodeEvent_Deposit(t *testing.T) {
	got, err := DecodeEvent("DEPOSITED_TO_BIN:AU1lp,131072,500,700")
	require.NoError(t, err)

	liq, ok := got.(LiquidityEvent)
	require.True(t, ok, "expected LiquidityEvent, got %T", got)
	assert.True(t, liq.Deposit)
	assert.Equal(t, "AU1lp", liq.Recipient)
	assert.Equal(t, uint32(131072), liq.BinID)
	assert.Equal(t, int64(500), liq.AmountX)
	assert.Equal(t, int64(700), liq.AmountY)
}

func TestDecodeEvent_Withdraw(t *testing.T) {
	got, err := DecodeEvent("WITHDRAWN_FROM_BIN:AU1lp,131073,500,0")
	require.NoError(t, err)

	liq, ok := got.(LiquidityEvent)
	require.True(t, ok)
	assert.False(t, liq.Deposit)
}

func TestDecodeEvent_DcaAdded(t *testing.T) {
	got, err := DecodeEvent("DCA_ADDED:AU1owner,42,AU1tokenin,AU1tokenout,1000000000,3600000,10")
	require.NoError(t, err)

	dca, ok := got.(DcaAddedEvent)
	require.True(t, ok, "expected DcaAddedEvent, got %T", got)
	assert.Equal(t, "AU1owner", dca.Owner)
	assert.Equal(t, uint64(42), dca.OrderID)
	assert.Equal(t, "AU1tokenin", dca.TokenIn)
	assert.Equal(t, "AU1tokenout", dca.TokenOut)
	assert.Equal(t, int64(1000000000), dca.AmountEach)
	assert.Equal(t, int64(3600000), dca.IntervalMs)
	assert.Equal(t, uint32(10), dca.NbExecutions)
}

func TestDecodeEvent_DcaExecuted(t *testing.T) {
	got, err := DecodeEvent("DCA_EXECUTED:AU1owner,42,950000000")
	require.NoError(t, err)

	dca, ok := got.(DcaExecutedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(42), dca.OrderID)
	assert.Equal(t, int64(950000000), dca.AmountOut)
}

func TestDecodeEvent_PairCreated(t *testing.T) {
	got, err := DecodeEvent("PAIR_CREATED:AU1token0,AU1token1,20,AU1pair")
	require.NoError(t, err)

	pc, ok := got.(PairCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(20), pc.BinStep)
	assert.Equal(t, "AU1pair", pc.Pair)
}

func TestDecodeEvent_UnknownTag(t *testing.T) {
	got, err := DecodeEvent("TRANSFER:AU1from,AU1to,100")
	require.NoError(t, err)

	_, ok := got.(Unrecognized)
	assert.True(t, ok, "expected Unrecognized, got %T", got)
}

func TestDecodeEvent_NoTag(t *testing.T) {
	got, err := DecodeEvent("just some text")
	require.NoError(t, err)

	_, ok := got.(Unrecognized)
	assert.True(t, ok)
}

func TestIsLiquidityEvent(t *testing.T) {
	pool := "AU1pool"
	stack := []string{"AU1router", pool}

	tests := []struct {
		name    string
		stack   []string
		payload string
		want    bool
	}{
		{"deposit from pool", stack, "DEPOSITED_TO_BIN:AU1lp,131072,500,700", true},
		{"withdraw from pool", stack, "WITHDRAWN_FROM_BIN:AU1lp,131072,500,700", true},
		{"swap payload from same emitter", stack, "SWAP:AU1r,131072,true,100,95,12,1", false},
		{"deposit from nested unrelated contract", []string{"AU1router", pool, "AU1other"}, "DEPOSITED_TO_BIN:AU1lp,131072,500,700", false},
		{"deposit from wrong emitter", []string{"AU1other"}, "DEPOSITED_TO_BIN:AU1lp,131072,500,700", false},
		{"empty call stack", nil, "DEPOSITED_TO_BIN:AU1lp,131072,500,700", false},
		{"tag must be a prefix", stack, "XDEPOSITED_TO_BIN:AU1lp,131072,500,700", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLiquidityEvent(tt.stack, tt.payload, pool))
		})
	}
}

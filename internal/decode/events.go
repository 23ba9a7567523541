// Package decode parses protocol event payloads and serialized operation
// argument buffers into typed records.
//
// Event payloads are strings with a type tag prefix followed by
// comma-separated fields, e.g. "SWAP:AU1abc,8388731,true,100,95,12,1".
// Operation buffers are fixed-layout little-endian argument encodings of
// router and DCA manager calls.
//
// Decode failures are never fatal to ingestion: callers skip the offending
// item, log, and continue.
package decode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Event payload type tags.
const (
	TagSwap        = "SWAP"
	TagDeposited   = "DEPOSITED_TO_BIN"
	TagWithdrawn   = "WITHDRAWN_FROM_BIN"
	TagDcaAdded    = "DCA_ADDED"
	TagDcaExecuted = "DCA_EXECUTED"
	TagDcaStopped  = "DCA_STOPPED"
	TagPairCreated = "PAIR_CREATED"
)

var (
	// ErrMalformedEvent is returned when a payload carries a known tag but
	// its fields cannot be parsed.
	ErrMalformedEvent = errors.New("malformed event payload")

	// ErrMalformedOperation is returned for truncated or type-mismatched
	// operation argument buffers.
	ErrMalformedOperation = errors.New("malformed operation buffer")
)

// Decoded is the tagged result of DecodeEvent. Exactly one of
// SwapEvent, LiquidityEvent, DcaAddedEvent, DcaExecutedEvent,
// DcaStoppedEvent, PairCreatedEvent or Unrecognized.
type Decoded interface {
	decodedEvent()
}

// SwapEvent is a decoded SWAP payload.
type SwapEvent struct {
	Recipient             string
	BinID                 uint32
	SwapForY              bool
	AmountIn              int64
	AmountOut             int64
	VolatilityAccumulated uint32
	TotalFees             int64
}

// LiquidityEvent is a decoded DEPOSITED_TO_BIN or WITHDRAWN_FROM_BIN
// payload. Deposit reports which tag was seen.
type LiquidityEvent struct {
	Recipient string
	BinID     uint32
	AmountX   int64
	AmountY   int64
	Deposit   bool
}

// DcaAddedEvent is a decoded DCA_ADDED payload.
type DcaAddedEvent struct {
	Owner        string
	OrderID      uint64
	TokenIn      string
	TokenOut     string
	AmountEach   int64
	IntervalMs   int64
	NbExecutions uint32
}

// DcaExecutedEvent is a decoded DCA_EXECUTED payload.
type DcaExecutedEvent struct {
	Owner     string
	OrderID   uint64
	AmountOut int64
}

// DcaStoppedEvent is a decoded DCA_STOPPED payload.
type DcaStoppedEvent struct {
	Owner   string
	OrderID uint64
}

// PairCreatedEvent is a decoded factory PAIR_CREATED payload.
type PairCreatedEvent struct {
	Token0  string
	Token1  string
	BinStep uint32
	Pair    string
}

// Unrecognized carries a payload whose tag is not part of the protocol.
// It is a valid decode result, not an error: operations routinely emit
// events from nested contract calls we do not track.
type Unrecognized struct {
	Payload string
}

func (SwapEvent) decodedEvent()        {}
func (LiquidityEvent) decodedEvent()   {}
func (DcaAddedEvent) decodedEvent()    {}
func (DcaExecutedEvent) decodedEvent() {}
func (DcaStoppedEvent) decodedEvent()  {}
func (PairCreatedEvent) decodedEvent() {}
func (Unrecognized) decodedEvent()     {}

// DecodeEvent parses any protocol event payload into its tagged variant.
// Unknown tags yield Unrecognized with a nil error; a known tag with
// unparseable fields yields ErrMalformedEvent.
func DecodeEvent(payload string) (Decoded, error) {
	tag, rest, ok := strings.Cut(payload, ":")
	if !ok {
		return Unrecognized{Payload: payload}, nil
	}

	switch tag {
	case TagSwap:
		return decodeSwap(rest)
	case TagDeposited:
		return decodeLiquidity(rest, true)
	case TagWithdrawn:
		return decodeLiquidity(rest, false)
	case TagDcaAdded:
		return decodeDcaAdded(rest)
	case TagDcaExecuted:
		return decodeDcaExecuted(rest)
	case TagDcaStopped:
		return decodeDcaStopped(rest)
	case TagPairCreated:
		return decodePairCreated(rest)
	default:
		return Unrecognized{Payload: payload}, nil
	}
}

// IsLiquidityEvent reports whether an event belongs to the given pool
// contract's liquidity flow. Both conditions are required: the direct
// emitter (top of the call stack) must match, and the payload must carry a
// liquidity tag. Emitter identity alone is not enough because one
// operation can emit events from several nested contract calls.
func IsLiquidityEvent(callStack []string, payload, expectedEmitter string) bool {
	if len(callStack) == 0 {
		return false
	}
	if callStack[len(callStack)-1] != expectedEmitter {
		return false
	}
	return strings.HasPrefix(payload, TagDeposited+":") ||
		strings.HasPrefix(payload, TagWithdrawn+":")
}

func splitFields(rest string, tag string, want int) ([]string, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != want {
		return nil, fmt.Errorf("%w: %s expects %d fields, got %d", ErrMalformedEvent, tag, want, len(fields))
	}
	return fields, nil
}

func parseUint32(tag, name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %s: %v", ErrMalformedEvent, tag, name, err)
	}
	return uint32(v), nil
}

func parseUint64(tag, name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %s: %v", ErrMalformedEvent, tag, name, err)
	}
	return v, nil
}

func parseAmount(tag, name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s field %s: not a raw amount: %q", ErrMalformedEvent, tag, name, s)
	}
	return v, nil
}

func decodeSwap(rest string) (Decoded, error) {
	f, err := splitFields(rest, TagSwap, 7)
	if err != nil {
		return nil, err
	}

	binID, err := parseUint32(TagSwap, "binId", f[1])
	if err != nil {
		return nil, err
	}
	swapForY, err := strconv.ParseBool(f[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %s field swapForY: %v", ErrMalformedEvent, TagSwap, err)
	}
	amountIn, err := parseAmount(TagSwap, "amountIn", f[3])
	if err != nil {
		return nil, err
	}
	amountOut, err := parseAmount(TagSwap, "amountOut", f[4])
	if err != nil {
		return nil, err
	}
	volatility, err := parseUint32(TagSwap, "volatilityAccumulated", f[5])
	if err != nil {
		return nil, err
	}
	totalFees, err := parseAmount(TagSwap, "totalFees", f[6])
	if err != nil {
		return nil, err
	}

	return SwapEvent{
		Recipient:             f[0],
		BinID:                 binID,
		SwapForY:              swapForY,
		AmountIn:              amountIn,
		AmountOut:             amountOut,
		VolatilityAccumulated: volatility,
		TotalFees:             totalFees,
	}, nil
}

func decodeLiquidity(rest string, deposit bool) (Decoded, error) {
	tag := TagWithdrawn
	if deposit {
		tag = TagDeposited
	}

	f, err := splitFields(rest, tag, 4)
	if err != nil {
		return nil, err
	}

	binID, err := parseUint32(tag, "binId", f[1])
	if err != nil {
		return nil, err
	}
	amountX, err := parseAmount(tag, "amountX", f[2])
	if err != nil {
		return nil, err
	}
	amountY, err := parseAmount(tag, "amountY", f[3])
	if err != nil {
		return nil, err
	}

	return LiquidityEvent{
		Recipient: f[0],
		BinID:     binID,
		AmountX:   amountX,
		AmountY:   amountY,
		Deposit:   deposit,
	}, nil
}

func decodeDcaAdded(rest string) (Decoded, error) {
	f, err := splitFields(rest, TagDcaAdded, 7)
	if err != nil {
		return nil, err
	}

	orderID, err := parseUint64(TagDcaAdded, "id", f[1])
	if err != nil {
		return nil, err
	}
	amountEach, err := parseAmount(TagDcaAdded, "amountEachDca", f[4])
	if err != nil {
		return nil, err
	}
	interval, err := parseAmount(TagDcaAdded, "interval", f[5])
	if err != nil {
		return nil, err
	}
	nb, err := parseUint32(TagDcaAdded, "nbOfDcas", f[6])
	if err != nil {
		return nil, err
	}

	return DcaAddedEvent{
		Owner:        f[0],
		OrderID:      orderID,
		TokenIn:      f[2],
		TokenOut:     f[3],
		AmountEach:   amountEach,
		IntervalMs:   interval,
		NbExecutions: nb,
	}, nil
}

func decodeDcaExecuted(rest string) (Decoded, error) {
	f, err := splitFields(rest, TagDcaExecuted, 3)
	if err != nil {
		return nil, err
	}

	orderID, err := parseUint64(TagDcaExecuted, "id", f[1])
	if err != nil {
		return nil, err
	}
	amountOut, err := parseAmount(TagDcaExecuted, "amountOut", f[2])
	if err != nil {
		return nil, err
	}

	return DcaExecutedEvent{Owner: f[0], OrderID: orderID, AmountOut: amountOut}, nil
}

func decodeDcaStopped(rest string) (Decoded, error) {
	f, err := splitFields(rest, TagDcaStopped, 2)
	if err != nil {
		return nil, err
	}

	orderID, err := parseUint64(TagDcaStopped, "id", f[1])
	if err != nil {
		return nil, err
	}

	return DcaStoppedEvent{Owner: f[0], OrderID: orderID}, nil
}

func decodePairCreated(rest string) (Decoded, error) {
	f, err := splitFields(rest, TagPairCreated, 4)
	if err != nil {
		return nil, err
	}

	binStep, err := parseUint32(TagPairCreated, "binStep", f[2])
	if err != nil {
		return nil, err
	}

	return PairCreatedEvent{
		Token0:  f[0],
		Token1:  f[1],
		BinStep: binStep,
		Pair:    f[3],
	}, nil
}

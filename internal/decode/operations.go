package decode

import "fmt"

// Router and DCA manager method names, as carried by operation messages.
const (
	MethodSwapExactIn     = "swapExactTokensForTokens"
	MethodSwapExactOut    = "swapTokensForExactTokens"
	MethodAddLiquidity    = "addLiquidity"
	MethodRemoveLiquidity = "removeLiquidity"
	MethodStartDca        = "startDca"
	MethodUpdateDca       = "updateDca"
	MethodStopDca         = "stopDca"
)

// Operation is the tagged result of DecodeOperation: one of SwapParams,
// AddLiquidityParams, RemoveLiquidityParams, StartDcaParams,
// UpdateDcaParams, StopDcaParams or UnknownOperation.
type Operation interface {
	decodedOperation()
}

// SwapParams are the decoded arguments of a router swap call.
//
// The two call shapes differ in which amount is exact and which is the
// bound: exact-in fixes AmountIn and bounds AmountOut from below,
// exact-out fixes AmountOut and bounds AmountIn from above.
type SwapParams struct {
	ExactIn   bool
	AmountIn  int64 // exact-in: exact value; exact-out: maximum bound
	AmountOut int64 // exact-in: minimum bound; exact-out: exact value
	BinSteps  []uint32
	Path      []string // token addresses, len(Path) == len(BinSteps)+1
	Recipient string
	Deadline  int64 // ms
}

// AddLiquidityParams are the decoded arguments of a router addLiquidity call.
type AddLiquidityParams struct {
	Token0          string
	Token1          string
	BinStep         uint32
	Amount0         int64
	Amount1         int64
	Amount0Min      int64
	Amount1Min      int64
	ActiveIDDesired uint32
	IDSlippage      uint32
	DeltaIDs        []int32  // bin offsets relative to the active id
	Distribution0   []uint64 // per-bin weight of token0, parallel to DeltaIDs
	Distribution1   []uint64
	Recipient       string
	Deadline        int64
}

// RemoveLiquidityParams are the decoded arguments of a router
// removeLiquidity call.
type RemoveLiquidityParams struct {
	Token0     string
	Token1     string
	BinStep    uint32
	Amount0Min int64
	Amount1Min int64
	BinIDs     []uint32
	Amounts    []uint64 // LP token amounts burned per bin, parallel to BinIDs
	Recipient  string
	Deadline   int64
}

// StartDcaParams are the decoded arguments of a DCA manager startDca call.
type StartDcaParams struct {
	TokenIn      string
	TokenOut     string
	AmountEach   int64
	IntervalMs   int64
	NbExecutions uint32
	StartIn      int64 // delay before the first execution (ms)
}

// UpdateDcaParams are the decoded arguments of an updateDca call.
type UpdateDcaParams struct {
	OrderID uint64
	StartDcaParams
}

// StopDcaParams are the decoded arguments of a stopDca call.
type StopDcaParams struct {
	OrderID uint64
}

// UnknownOperation carries a method this decoder does not handle.
type UnknownOperation struct {
	Method string
}

func (SwapParams) decodedOperation()            {}
func (AddLiquidityParams) decodedOperation()    {}
func (RemoveLiquidityParams) decodedOperation() {}
func (StartDcaParams) decodedOperation()        {}
func (UpdateDcaParams) decodedOperation()       {}
func (StopDcaParams) decodedOperation()         {}
func (UnknownOperation) decodedOperation()      {}

// DecodeOperation dispatches on the method name and decodes the argument
// buffer. Unknown methods yield UnknownOperation with a nil error.
func DecodeOperation(method string, buf []byte) (Operation, error) {
	switch method {
	case MethodSwapExactIn, MethodSwapExactOut:
		return DecodeSwapOperation(method, buf)
	case MethodAddLiquidity:
		return DecodeAddLiquidity(buf)
	case MethodRemoveLiquidity:
		return DecodeRemoveLiquidity(buf)
	case MethodStartDca, MethodUpdateDca, MethodStopDca:
		return DecodeDcaOperation(method, buf)
	default:
		return UnknownOperation{Method: method}, nil
	}
}

// DecodeSwapOperation decodes the two router swap call shapes. The field
// order is identical; the method name decides which amount is exact.
func DecodeSwapOperation(method string, buf []byte) (SwapParams, error) {
	var exactIn bool
	switch method {
	case MethodSwapExactIn:
		exactIn = true
	case MethodSwapExactOut:
		exactIn = false
	default:
		return SwapParams{}, fmt.Errorf("%w: %q is not a swap method", ErrMalformedOperation, method)
	}

	r := newReader(buf)
	first := r.amount()
	second := r.amount()
	binSteps := r.u32Vec()
	path := r.addressVec()
	recipient := r.address()
	deadline := r.i64()
	if err := r.done(); err != nil {
		return SwapParams{}, err
	}

	if len(path) != len(binSteps)+1 {
		return SwapParams{}, fmt.Errorf("%w: path length %d does not match %d bin steps",
			ErrMalformedOperation, len(path), len(binSteps))
	}

	p := SwapParams{
		ExactIn:   exactIn,
		BinSteps:  binSteps,
		Path:      path,
		Recipient: recipient,
		Deadline:  deadline,
	}
	if exactIn {
		p.AmountIn, p.AmountOut = first, second
	} else {
		p.AmountOut, p.AmountIn = first, second
	}
	return p, nil
}

// DecodeAddLiquidity decodes a router addLiquidity argument buffer.
func DecodeAddLiquidity(buf []byte) (AddLiquidityParams, error) {
	r := newReader(buf)
	p := AddLiquidityParams{
		Token0:          r.address(),
		Token1:          r.address(),
		BinStep:         r.u32(),
		Amount0:         r.amount(),
		Amount1:         r.amount(),
		Amount0Min:      r.amount(),
		Amount1Min:      r.amount(),
		ActiveIDDesired: r.u32(),
		IDSlippage:      r.u32(),
		DeltaIDs:        r.i32Vec(),
		Distribution0:   r.u64Vec(),
		Distribution1:   r.u64Vec(),
		Recipient:       r.address(),
		Deadline:        r.i64(),
	}
	if err := r.done(); err != nil {
		return AddLiquidityParams{}, err
	}

	if len(p.Distribution0) != len(p.DeltaIDs) || len(p.Distribution1) != len(p.DeltaIDs) {
		return AddLiquidityParams{}, fmt.Errorf("%w: distribution arrays do not match %d delta ids",
			ErrMalformedOperation, len(p.DeltaIDs))
	}
	return p, nil
}

// DecodeRemoveLiquidity decodes a router removeLiquidity argument buffer.
func DecodeRemoveLiquidity(buf []byte) (RemoveLiquidityParams, error) {
	r := newReader(buf)
	p := RemoveLiquidityParams{
		Token0:     r.address(),
		Token1:     r.address(),
		BinStep:    r.u32(),
		Amount0Min: r.amount(),
		Amount1Min: r.amount(),
		BinIDs:     r.u32Vec(),
		Amounts:    r.u64Vec(),
		Recipient:  r.address(),
		Deadline:   r.i64(),
	}
	if err := r.done(); err != nil {
		return RemoveLiquidityParams{}, err
	}

	if len(p.Amounts) != len(p.BinIDs) {
		return RemoveLiquidityParams{}, fmt.Errorf("%w: %d amounts for %d bin ids",
			ErrMalformedOperation, len(p.Amounts), len(p.BinIDs))
	}
	return p, nil
}

// DecodeDcaOperation decodes DCA manager call buffers.
func DecodeDcaOperation(method string, buf []byte) (Operation, error) {
	r := newReader(buf)

	switch method {
	case MethodStartDca:
		p := readStartDca(r)
		if err := r.done(); err != nil {
			return nil, err
		}
		return p, nil

	case MethodUpdateDca:
		id := r.u64()
		p := readStartDca(r)
		if err := r.done(); err != nil {
			return nil, err
		}
		return UpdateDcaParams{OrderID: id, StartDcaParams: p}, nil

	case MethodStopDca:
		id := r.u64()
		if err := r.done(); err != nil {
			return nil, err
		}
		return StopDcaParams{OrderID: id}, nil

	default:
		return nil, fmt.Errorf("%w: %q is not a DCA method", ErrMalformedOperation, method)
	}
}

func readStartDca(r *reader) StartDcaParams {
	return StartDcaParams{
		TokenIn:      r.address(),
		TokenOut:     r.address(),
		AmountEach:   r.amount(),
		IntervalMs:   r.i64(),
		NbExecutions: r.u32(),
		StartIn:      r.i64(),
	}
}

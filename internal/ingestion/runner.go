// Package ingestion orchestrates the live pipeline: feed consumption,
// payload decoding, pool discovery and analytics aggregation.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"binamm-indexer/internal/aggregate"
	"binamm-indexer/internal/decode"
	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/feed"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/storage"
)

// ErrOperationNotFinal marks an operation whose finality status did not
// reach success; processing of that operation is aborted, the stream
// continues.
var ErrOperationNotFinal = errors.New("operation not final")

// Source abstracts the chain feed for testability.
type Source interface {
	Operations() <-chan feed.Operation
	Events() <-chan feed.Event
}

// TokenResolver resolves token metadata at pool-discovery time.
type TokenResolver interface {
	Resolve(ctx context.Context, address string) (domain.Token, error)
}

// Runner consumes the feed and drives decoding, discovery and
// aggregation. Events for one pool are applied strictly in delivery
// order on a dedicated per-pool worker; independent pools proceed
// concurrently.
type Runner struct {
	source     Source
	pools      storage.PoolStore
	dcaOrders  storage.DcaOrderStore
	aggregator *aggregate.Aggregator
	tokens     TokenResolver
	metrics    *observability.Metrics
	logger     *log.Logger

	factoryAddress    string
	routerAddress     string
	dcaManagerAddress string
	genesisMs         int64

	// workers is touched only from the Run goroutine
	workers map[string]chan func()
	wg      sync.WaitGroup
}

// Options contains configuration for creating a Runner.
type Options struct {
	Source     Source
	Pools      storage.PoolStore
	DcaOrders  storage.DcaOrderStore
	Aggregator *aggregate.Aggregator
	Tokens     TokenResolver          // optional; defaults to address-only metadata
	Metrics    *observability.Metrics // optional
	Logger     *log.Logger

	FactoryAddress    string
	RouterAddress     string
	DcaManagerAddress string
	GenesisMs         int64
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source:            opts.Source,
		pools:             opts.Pools,
		dcaOrders:         opts.DcaOrders,
		aggregator:        opts.Aggregator,
		tokens:            opts.Tokens,
		metrics:           opts.Metrics,
		logger:            logger,
		factoryAddress:    opts.FactoryAddress,
		routerAddress:     opts.RouterAddress,
		dcaManagerAddress: opts.DcaManagerAddress,
		genesisMs:         opts.GenesisMs,
		workers:           make(map[string]chan func()),
	}
}

// Run consumes both feed streams until the context is cancelled or a
// stream closes. Decode and valuation failures are per-item: logged,
// skipped, the stream continues.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting ingestion runner...")

	ops := r.source.Operations()
	events := r.source.Events()

	defer r.drainWorkers()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case op, ok := <-ops:
			if !ok {
				return errors.New("operation stream closed")
			}
			if err := r.handleOperation(ctx, op); err != nil {
				r.logger.Printf("operation %s: %v", op.TxID, err)
			}

		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed")
			}
			if err := r.handleEvent(ctx, ev); err != nil {
				r.logger.Printf("event %s#%d: %v", ev.OriginTxID, ev.Index, err)
			}
		}
	}
}

// drainWorkers closes every per-pool queue and waits for in-flight work.
func (r *Runner) drainWorkers() {
	for _, ch := range r.workers {
		close(ch)
	}
	r.wg.Wait()
}

// dispatch queues a task on the pool's worker, creating it on first use.
// Single-writer: only the Run goroutine calls this.
func (r *Runner) dispatch(poolAddress string, task func()) {
	ch, ok := r.workers[poolAddress]
	if !ok {
		ch = make(chan func(), 256)
		r.workers[poolAddress] = ch
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for t := range ch {
				t()
			}
		}()
	}
	ch <- task
}

func (r *Runner) handleEvent(ctx context.Context, ev feed.Event) error {
	if len(ev.CallStack) == 0 {
		return nil
	}
	emitter := ev.CallStack[len(ev.CallStack)-1]
	ts := feed.SlotTimestamp(r.genesisMs, ev.Slot)

	decoded, err := decode.DecodeEvent(ev.Data)
	if err != nil {
		r.countDecodeError("event")
		return fmt.Errorf("decode: %w", err)
	}

	switch d := decoded.(type) {
	case decode.PairCreatedEvent:
		if emitter != r.factoryAddress {
			return nil
		}
		return r.createPool(ctx, d, ts)

	case decode.SwapEvent:
		pool, err := r.lookupPool(ctx, emitter)
		if err != nil || pool == nil {
			return err
		}
		r.countEvent("swap")
		rec := &domain.SwapRecord{
			PoolAddress: pool.Address,
			UserAddress: d.Recipient,
			SwapForY:    d.SwapForY,
			BinID:       d.BinID,
			AmountIn:    d.AmountIn,
			AmountOut:   d.AmountOut,
			FeesRaw:     d.TotalFees,
			Timestamp:   ts,
			TxHash:      ev.OriginTxID,
			EventIndex:  ev.Index,
		}
		r.dispatch(pool.Address, func() {
			if err := r.aggregator.ApplySwap(ctx, pool, rec); err != nil {
				r.logger.Printf("apply swap %s#%d: %v", rec.TxHash, rec.EventIndex, err)
				return
			}
			r.markApplied(ts)
		})
		return nil

	case decode.LiquidityEvent:
		pool, err := r.lookupPool(ctx, emitter)
		if err != nil || pool == nil {
			return err
		}
		if !decode.IsLiquidityEvent(ev.CallStack, ev.Data, pool.Address) {
			return nil
		}
		r.countEvent("liquidity")
		rec := liquidityRecord(pool, d, ev, ts)
		r.dispatch(pool.Address, func() {
			if err := r.aggregator.ApplyLiquidity(ctx, pool, rec); err != nil {
				r.logger.Printf("apply liquidity %s#%d: %v", rec.TxHash, rec.EventIndex, err)
				return
			}
			r.markApplied(ts)
		})
		return nil

	case decode.DcaAddedEvent:
		if emitter != r.dcaManagerAddress {
			return nil
		}
		r.countEvent("dca_added")
		return r.createDcaOrder(ctx, d, ev.OriginTxID, ts)

	case decode.DcaExecutedEvent:
		if emitter != r.dcaManagerAddress {
			return nil
		}
		r.countEvent("dca_executed")
		err := r.dcaOrders.RecordExecution(ctx, d.OrderID, ts)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Printf("dca execution for unknown order %d", d.OrderID)
			return nil
		}
		return err

	case decode.DcaStoppedEvent:
		if emitter != r.dcaManagerAddress {
			return nil
		}
		r.countEvent("dca_stopped")
		return r.stopDcaOrder(ctx, d.OrderID, ts)

	case decode.Unrecognized:
		return nil
	}
	return nil
}

// liquidityRecord signs amounts by call direction: deposits positive,
// withdrawals negative, regardless of how the payload spells them.
func liquidityRecord(pool *domain.Pool, d decode.LiquidityEvent, ev feed.Event, ts int64) *domain.LiquidityRecord {
	kind := domain.LiquidityDeposit
	amount0, amount1 := abs64(d.AmountX), abs64(d.AmountY)
	if !d.Deposit {
		kind = domain.LiquidityWithdraw
		amount0, amount1 = -amount0, -amount1
	}
	return &domain.LiquidityRecord{
		PoolAddress: pool.Address,
		UserAddress: d.Recipient,
		Kind:        kind,
		BinID:       d.BinID,
		Amount0:     amount0,
		Amount1:     amount1,
		Timestamp:   ts,
		TxHash:      ev.OriginTxID,
		EventIndex:  ev.Index,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// lookupPool resolves the emitter to a tracked pool. Unknown emitters
// are not an error: operations routinely touch contracts we don't track.
func (r *Runner) lookupPool(ctx context.Context, address string) (*domain.Pool, error) {
	pool, err := r.pools.GetByAddress(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pool %s: %w", address, err)
	}
	return pool, nil
}

func (r *Runner) createPool(ctx context.Context, d decode.PairCreatedEvent, ts int64) error {
	token0, err := r.resolveToken(ctx, d.Token0)
	if err != nil {
		return fmt.Errorf("resolve token %s: %w", d.Token0, err)
	}
	token1, err := r.resolveToken(ctx, d.Token1)
	if err != nil {
		return fmt.Errorf("resolve token %s: %w", d.Token1, err)
	}

	pool := domain.NewPool(d.Pair, d.BinStep, token0, token1, ts)
	if err := r.pools.Insert(ctx, pool); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("insert pool: %w", err)
	}

	if r.metrics != nil {
		r.metrics.PoolsDiscovered.Inc()
	}
	r.logger.Printf("pool discovered: %s (%s/%s, binStep=%d)",
		pool.Address, pool.Token0.Address, pool.Token1.Address, pool.BinStep)
	return nil
}

func (r *Runner) resolveToken(ctx context.Context, address string) (domain.Token, error) {
	if r.tokens == nil {
		return domain.Token{Address: address, Decimals: 9}, nil
	}
	return r.tokens.Resolve(ctx, address)
}

func (r *Runner) createDcaOrder(ctx context.Context, d decode.DcaAddedEvent, txHash string, ts int64) error {
	order := &domain.DcaOrder{
		ID:           d.OrderID,
		Owner:        d.Owner,
		TokenIn:      d.TokenIn,
		TokenOut:     d.TokenOut,
		AmountEach:   d.AmountEach,
		IntervalMs:   d.IntervalMs,
		NbExecutions: d.NbExecutions,
		Status:       domain.DcaStatusActive,
		CreatedAt:    ts,
		UpdatedAt:    ts,
		TxHash:       txHash,
	}
	if err := r.dcaOrders.Insert(ctx, order); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("insert dca order: %w", err)
	}
	return nil
}

func (r *Runner) stopDcaOrder(ctx context.Context, orderID uint64, ts int64) error {
	order, err := r.dcaOrders.Get(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Printf("dca stop for unknown order %d", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get dca order: %w", err)
	}
	if order.Status != domain.DcaStatusActive {
		return nil
	}
	order.Status = domain.DcaStatusStopped
	order.UpdatedAt = ts
	return r.dcaOrders.Update(ctx, order)
}

// handleOperation tracks DCA lifecycle calls addressed to the manager
// contract. Swap and liquidity calls carry no aggregation input beyond
// what their events already deliver; they are decoded for validation
// and accounted only.
func (r *Runner) handleOperation(ctx context.Context, op feed.Operation) error {
	if op.TargetAddress != r.routerAddress && op.TargetAddress != r.dcaManagerAddress {
		return nil
	}
	if !op.Final {
		r.countSkipped("not_final")
		return ErrOperationNotFinal
	}

	decoded, err := decode.DecodeOperation(op.Method, op.Args)
	if err != nil {
		r.countDecodeError("operation")
		return fmt.Errorf("decode %s: %w", op.Method, err)
	}

	ts := feed.SlotTimestamp(r.genesisMs, op.Slot)

	switch d := decoded.(type) {
	case decode.UpdateDcaParams:
		return r.updateDcaOrder(ctx, d, ts)
	case decode.StopDcaParams:
		return r.stopDcaOrder(ctx, d.OrderID, ts)
	case decode.StartDcaParams:
		// The order id is assigned on-chain and arrives with DCA_ADDED.
		return nil
	case decode.SwapParams, decode.AddLiquidityParams, decode.RemoveLiquidityParams:
		return nil
	case decode.UnknownOperation:
		r.countSkipped("unknown_method")
		return nil
	}
	return nil
}

func (r *Runner) updateDcaOrder(ctx context.Context, d decode.UpdateDcaParams, ts int64) error {
	order, err := r.dcaOrders.Get(ctx, d.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Printf("dca update for unknown order %d", d.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get dca order: %w", err)
	}
	if order.Status != domain.DcaStatusActive {
		return nil
	}

	order.TokenIn = d.TokenIn
	order.TokenOut = d.TokenOut
	order.AmountEach = d.AmountEach
	order.IntervalMs = d.IntervalMs
	order.NbExecutions = d.NbExecutions
	order.UpdatedAt = ts
	return r.dcaOrders.Update(ctx, order)
}

func (r *Runner) countEvent(eventType string) {
	if r.metrics != nil {
		r.metrics.EventsProcessed.WithLabelValues(eventType).Inc()
	}
}

func (r *Runner) countDecodeError(kind string) {
	if r.metrics != nil {
		r.metrics.DecodeErrors.WithLabelValues(kind).Inc()
	}
}

func (r *Runner) countSkipped(reason string) {
	if r.metrics != nil {
		r.metrics.OperationsSkipped.WithLabelValues(reason).Inc()
	}
}

func (r *Runner) markApplied(ts int64) {
	if r.metrics != nil {
		r.metrics.LastEventTimestamp.Set(float64(ts))
		r.metrics.FeedLag.Set(float64(time.Now().UnixMilli()-ts) / 1000)
	}
}

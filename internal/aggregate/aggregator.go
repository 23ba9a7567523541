// Package aggregate applies decoded swap and liquidity events to per-pool
// hourly analytics buckets.
//
// Every operation is a stateless transform from (event, current bucket
// snapshot) to (new bucket snapshot). Idempotence under at-least-once
// delivery comes from the raw record insert: its unique key
// (pool, tx_hash, event_index) rejects replays before any increment is
// applied, and the bucket increment itself is a single atomic
// upsert-with-increment in the store.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"binamm-indexer/internal/binmath"
	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/storage"
	"binamm-indexer/internal/tick"
	"binamm-indexer/internal/valuation"
)

// rawScale converts raw fixed-point amounts (9 decimals) to whole units.
const rawScale = 1e9

// Valuer resolves a token's USD unit value.
type Valuer interface {
	TokenValue(ctx context.Context, token string) (float64, error)
}

// Aggregator folds decoded events into analytics buckets.
type Aggregator struct {
	buckets storage.BucketStore
	swaps   storage.SwapRecordStore
	liq     storage.LiquidityRecordStore
	valuer  Valuer
	archive storage.SwapArchiver // optional, best-effort
	metrics *observability.Metrics
	logger  *log.Logger
}

// Options contains configuration for creating an Aggregator.
type Options struct {
	BucketStore    storage.BucketStore
	SwapStore      storage.SwapRecordStore
	LiquidityStore storage.LiquidityRecordStore
	Valuer         Valuer
	Archiver       storage.SwapArchiver
	Metrics        *observability.Metrics // optional
	Logger         *log.Logger
}

// NewAggregator creates a new analytics aggregator.
func NewAggregator(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{
		buckets: opts.BucketStore,
		swaps:   opts.SwapStore,
		liq:     opts.LiquidityStore,
		valuer:  opts.Valuer,
		archive: opts.Archiver,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// UsdAmount converts a raw fixed-point amount to USD given the token's
// unit value. The canonical representation everywhere in this module is
// fractional USD as float64; nothing is scaled to cents.
func UsdAmount(raw int64, tokenUsdValue float64) float64 {
	return float64(raw) / rawScale * tokenUsdValue
}

// ApplySwap records one swap event and folds it into its hourly bucket.
// Events for one pool must arrive in increasing (timestamp, event index)
// order: close tracking is last-write-wins. A replayed event (duplicate
// record key) is a no-op.
func (a *Aggregator) ApplySwap(ctx context.Context, pool *domain.Pool, rec *domain.SwapRecord) error {
	price, err := binmath.PriceFromBinID(rec.BinID, pool.BinStep)
	if err != nil {
		return fmt.Errorf("price for bin %d: %w", rec.BinID, err)
	}

	tokenIn := pool.Token0
	if !rec.SwapForY {
		tokenIn = pool.Token1
	}

	var volumeUsd, feesUsd float64
	value, err := a.valuer.TokenValue(ctx, tokenIn.Address)
	switch {
	case errors.Is(err, valuation.ErrUnknownToken):
		// OHLC still moves; only USD-denominated counters are skipped.
		a.countValuationFailure()
		a.logger.Printf("swap %s#%d: cannot value %s, skipping USD counters",
			rec.TxHash, rec.EventIndex, tokenIn.Address)
	case err != nil:
		return fmt.Errorf("value token %s: %w", tokenIn.Address, err)
	default:
		volumeUsd = UsdAmount(rec.AmountIn+rec.FeesRaw, value)
		feesUsd = UsdAmount(rec.FeesRaw, value)
	}
	rec.UsdValue = volumeUsd

	if err := a.swaps.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.countDuplicate()
			return nil // already processed
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	a.countStored("swap")

	bucketStart := tick.HourStart(rec.Timestamp)
	if err := a.backfill(ctx, pool.Address, bucketStart); err != nil {
		return err
	}

	err = a.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    pool.Address,
		BucketStart:    bucketStart,
		Price:          price,
		VolumeUsdDelta: volumeUsd,
		FeesUsdDelta:   feesUsd,
	})
	if err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	a.countUpsert()

	if a.archive != nil {
		if err := a.archive.Archive(ctx, rec); err != nil {
			// Archive is best-effort and must never block ingestion.
			a.countArchive(false)
			a.logger.Printf("archive swap %s#%d: %v", rec.TxHash, rec.EventIndex, err)
		} else {
			a.countArchive(true)
		}
	}
	return nil
}

// ApplyLiquidity records one liquidity event and folds its reserve
// deltas into the hourly bucket. Amounts on the record are already
// signed by call direction. A replayed event is a no-op.
func (a *Aggregator) ApplyLiquidity(ctx context.Context, pool *domain.Pool, rec *domain.LiquidityRecord) error {
	value0, value1 := a.pairValues(ctx, pool)
	rec.UsdValue = UsdAmount(rec.Amount0, value0) + UsdAmount(rec.Amount1, value1)

	if err := a.liq.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.countDuplicate()
			return nil // already processed
		}
		return fmt.Errorf("insert liquidity record: %w", err)
	}
	a.countStored("liquidity")

	bucketStart := tick.HourStart(rec.Timestamp)
	price, err := a.carryPrice(ctx, pool, rec.BinID, bucketStart)
	if err != nil {
		return err
	}

	if err := a.backfill(ctx, pool.Address, bucketStart); err != nil {
		return err
	}

	err = a.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    pool.Address,
		BucketStart:    bucketStart,
		Price:          price,
		Token0Delta:    rec.Amount0,
		Token1Delta:    rec.Amount1,
		UsdLockedDelta: rec.UsdValue,
	})
	if err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	a.countUpsert()
	return nil
}

// pairValues resolves both pool tokens concurrently and awaits both.
// Unknown tokens contribute zero to USD-denominated counters.
func (a *Aggregator) pairValues(ctx context.Context, pool *domain.Pool) (float64, float64) {
	var (
		wg             sync.WaitGroup
		value0, value1 float64
		err0, err1     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		value0, err0 = a.valuer.TokenValue(ctx, pool.Token0.Address)
	}()
	go func() {
		defer wg.Done()
		value1, err1 = a.valuer.TokenValue(ctx, pool.Token1.Address)
	}()
	wg.Wait()

	if err0 != nil {
		a.countValuationFailure()
		a.logger.Printf("pool %s: cannot value %s: %v", pool.Address, pool.Token0.Address, err0)
		value0 = 0
	}
	if err1 != nil {
		a.countValuationFailure()
		a.logger.Printf("pool %s: cannot value %s: %v", pool.Address, pool.Token1.Address, err1)
		value1 = 0
	}
	return value0, value1
}

// carryPrice picks the price a liquidity event writes into its bucket:
// the bucket's current close if it exists, otherwise the previous
// bucket's close, otherwise the event's own bin price. Liquidity events
// must not invent price movement.
func (a *Aggregator) carryPrice(ctx context.Context, pool *domain.Pool, binID uint32, bucketStart int64) (float64, error) {
	current, err := a.buckets.Get(ctx, pool.Address, bucketStart)
	if err == nil {
		return current.Close, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("get current bucket: %w", err)
	}

	prev, err := a.buckets.LatestBefore(ctx, pool.Address, bucketStart)
	if err == nil {
		return prev.Close, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("get previous bucket: %w", err)
	}

	price, err := binmath.PriceFromBinID(binID, pool.BinStep)
	if err != nil {
		return 0, fmt.Errorf("price for bin %d: %w", binID, err)
	}
	return price, nil
}

// backfill replicates the last known close over any skipped hourly
// buckets so the stored sequence stays gapless for the resampler.
// Filled buckets carry zero volume and fees. Re-running is harmless:
// the seeded price equals the existing close and all deltas are zero.
func (a *Aggregator) backfill(ctx context.Context, poolAddress string, bucketStart int64) error {
	latest, err := a.buckets.LatestBefore(ctx, poolAddress, bucketStart)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil // first bucket for this pool
		}
		return fmt.Errorf("find latest bucket: %w", err)
	}

	for _, t := range tick.Hours(latest.BucketStart+tick.Hour, bucketStart-tick.Hour) {
		err := a.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress: poolAddress,
			BucketStart: t,
			Price:       latest.Close,
		})
		if err != nil {
			return fmt.Errorf("backfill bucket at %d: %w", t, err)
		}
		a.countBackfill()
	}
	return nil
}

func (a *Aggregator) countStored(eventType string) {
	if a.metrics != nil {
		a.metrics.EventsStored.WithLabelValues(eventType).Inc()
	}
}

func (a *Aggregator) countDuplicate() {
	if a.metrics != nil {
		a.metrics.DuplicateEvents.Inc()
	}
}

func (a *Aggregator) countUpsert() {
	if a.metrics != nil {
		a.metrics.BucketUpserts.Inc()
	}
}

func (a *Aggregator) countBackfill() {
	if a.metrics != nil {
		a.metrics.BackfilledBuckets.Inc()
	}
}

func (a *Aggregator) countArchive(ok bool) {
	if a.metrics == nil {
		return
	}
	if ok {
		a.metrics.ArchiveWrites.Inc()
	} else {
		a.metrics.ArchiveErrors.Inc()
	}
}

func (a *Aggregator) countValuationFailure() {
	if a.metrics != nil {
		a.metrics.ValuationFailures.Inc()
	}
}

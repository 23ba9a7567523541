package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/storage"
	"binamm-indexer/internal/storage/memory"
	"binamm-indexer/internal/tick"
)

const poolAddr = "AU1pool"

// Monday 2024-01-08 00:00 UTC.
const testNow = int64(1704672000000)

type fixture struct {
	buckets   *memory.BucketStore
	pools     *memory.PoolStore
	swaps     *memory.SwapRecordStore
	liquidity *memory.LiquidityRecordStore
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		buckets:   memory.NewBucketStore(),
		pools:     memory.NewPoolStore(),
		swaps:     memory.NewSwapRecordStore(),
		liquidity: memory.NewLiquidityRecordStore(),
	}

	srv := NewServer(Options{
		Buckets:   f.buckets,
		Pools:     f.pools,
		Swaps:     f.swaps,
		Liquidity: f.liquidity,
		Logger:    log.New(os.Stderr, "[api-test] ", 0),
		Now:       func() int64 { return testNow },
	})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

// seedHours writes n hourly buckets ending just before testNow.
func (f *fixture) seedHours(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	start := tick.HourStart(testNow) - int64(n)*tick.Hour
	for i := 0; i < n; i++ {
		err := f.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress:    poolAddr,
			BucketStart:    start + int64(i)*tick.Hour,
			Price:          100 + float64(i%5),
			VolumeUsdDelta: 10,
			FeesUsdDelta:   1,
		})
		require.NoError(t, err)
	}
}

func (f *fixture) getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHandleVolume_HourlyPassthrough(t *testing.T) {
	f := newFixture(t)
	f.seedHours(t, 48)

	var out []volumePoint
	f.getJSON(t, "/api/pool/"+poolAddr+"/volume?take=10", &out)

	require.Len(t, out, 10)
	for _, p := range out {
		assert.Equal(t, 10.0, p.VolumeUsd)
		assert.Equal(t, 1.0, p.FeesUsd)
	}
}

func TestHandleVolume_DailyResample(t *testing.T) {
	f := newFixture(t)
	f.seedHours(t, 48)

	var out []volumePoint
	f.getJSON(t, "/api/pool/"+poolAddr+"/volume?take=2&resolution=1", &out)

	require.Len(t, out, 2)
	for _, p := range out {
		assert.Equal(t, 240.0, p.VolumeUsd) // 24 hours x 10
		assert.Equal(t, 24.0, p.FeesUsd)
	}
}

func TestHandleVolume_EmptyPoolDegradesToEmptyArray(t *testing.T) {
	f := newFixture(t)

	var out []volumePoint
	f.getJSON(t, "/api/pool/AU1nothing/volume", &out)
	assert.Empty(t, out)
}

func TestHandlePrice_ReturnsCandles(t *testing.T) {
	f := newFixture(t)
	f.seedHours(t, 24)

	var out []domain.Candle
	f.getJSON(t, "/api/pool/"+poolAddr+"/price?take=24", &out)

	require.NotEmpty(t, out)
	for _, c := range out {
		assert.LessOrEqual(t, c.Low, c.High)
	}
}

func TestHandleTvl_ServesRunningTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    poolAddr,
		BucketStart:    tick.HourStart(testNow) - tick.Hour,
		Price:          100,
		Token0Delta:    500,
		Token1Delta:    700,
		UsdLockedDelta: 1.5,
	})
	require.NoError(t, err)

	var out []tvlPoint
	f.getJSON(t, "/api/pool/"+poolAddr+"/tvl", &out)

	require.Len(t, out, 1)
	assert.Equal(t, int64(500), out[0].Token0Locked)
	assert.Equal(t, int64(700), out[0].Token1Locked)
	assert.Equal(t, 1.5, out[0].UsdLocked)
}

func TestHandleSummary24h(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Prior window: 100 USD; current window: 150 USD.
	err := f.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    poolAddr,
		BucketStart:    testNow - tick.Day - 2*tick.Hour,
		Price:          100,
		VolumeUsdDelta: 100,
		FeesUsdDelta:   10,
	})
	require.NoError(t, err)
	err = f.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    poolAddr,
		BucketStart:    testNow - 2*tick.Hour,
		Price:          100,
		VolumeUsdDelta: 150,
		FeesUsdDelta:   12,
	})
	require.NoError(t, err)

	var out summary24h
	f.getJSON(t, "/api/pool/"+poolAddr+"/summary24h", &out)

	assert.Equal(t, 150.0, out.VolumeUsd)
	assert.Equal(t, 12.0, out.FeesUsd)
	assert.InDelta(t, 50.0, out.VolumeChangePct, 1e-9)
	assert.InDelta(t, 20.0, out.FeesChangePct, 1e-9)
}

func TestHandleSummary24h_ZeroPriorWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.buckets.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    poolAddr,
		BucketStart:    testNow - tick.Hour,
		Price:          100,
		VolumeUsdDelta: 50,
	})
	require.NoError(t, err)

	var out summary24h
	f.getJSON(t, "/api/pool/"+poolAddr+"/summary24h", &out)

	assert.Equal(t, 50.0, out.VolumeUsd)
	assert.Zero(t, out.VolumeChangePct) // no prior window, not +Inf
}

func TestHandleSwaps_RecentList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.swaps.Insert(ctx, &domain.SwapRecord{
			PoolAddress: poolAddr,
			UserAddress: "AU1user",
			BinID:       131072,
			AmountIn:    100,
			AmountOut:   95,
			Timestamp:   testNow - int64(i)*tick.Hour,
			TxHash:      fmt.Sprintf("tx%d", i),
			EventIndex:  0,
		})
		require.NoError(t, err)
	}

	var out []swapItem
	f.getJSON(t, "/api/pool/"+poolAddr+"/swaps?take=2", &out)

	require.Len(t, out, 2)
	assert.Equal(t, "tx0", out[0].TxHash) // newest first
}

func TestHandlePools_ListsTrackedPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := domain.NewPool("AU1paira", 20,
		domain.Token{Address: "AU1tokenA", Symbol: "WMAS", Decimals: 9},
		domain.Token{Address: "AU1tokenB", Symbol: "USDC", Decimals: 9},
		testNow-tick.Day,
	)
	second := domain.NewPool("AU1pairb", 100,
		domain.Token{Address: "AU1tokenB", Symbol: "USDC", Decimals: 9},
		domain.Token{Address: "AU1tokenC", Symbol: "WETH", Decimals: 9},
		testNow,
	)
	require.NoError(t, f.pools.Insert(ctx, first))
	require.NoError(t, f.pools.Insert(ctx, second))

	var out []poolItem
	f.getJSON(t, "/api/pools", &out)

	require.Len(t, out, 2)
	assert.Equal(t, "AU1paira", out[0].Address) // oldest first
	assert.Equal(t, uint32(20), out[0].BinStep)
	assert.Equal(t, "WMAS", out[0].Token0.Symbol)
	assert.Equal(t, uint8(9), out[0].Token0.Decimals)
	assert.Equal(t, "AU1pairb", out[1].Address)
}

func TestHandlePools_EmptyIsEmptyArray(t *testing.T) {
	f := newFixture(t)

	var out []poolItem
	f.getJSON(t, "/api/pools", &out)
	assert.Empty(t, out)
}

func TestHandleStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Activity in the current week and the one before it.
	for i, ts := range []int64{testNow + tick.Hour, testNow - 3*tick.Day} {
		err := f.swaps.Insert(ctx, &domain.SwapRecord{
			PoolAddress: poolAddr,
			UserAddress: "AU1streaker",
			Timestamp:   ts,
			TxHash:      fmt.Sprintf("tx%d", i),
		})
		require.NoError(t, err)
	}

	var out streakResponse
	f.getJSON(t, "/api/user/AU1streaker/streak", &out)

	assert.Equal(t, "AU1streaker", out.Address)
	assert.Equal(t, 2, out.Streak)
}

func TestHandleStreak_NoActivity(t *testing.T) {
	f := newFixture(t)

	var out streakResponse
	f.getJSON(t, "/api/user/AU1ghost/streak", &out)
	assert.Zero(t, out.Streak)
}

// failingBuckets simulates an unavailable store.
type failingBuckets struct{}

func (failingBuckets) UpsertIncrement(context.Context, storage.BucketUpdate) error {
	return errors.New("down")
}
func (failingBuckets) Get(context.Context, string, int64) (*domain.AnalyticsBucket, error) {
	return nil, errors.New("down")
}
func (failingBuckets) GetRange(context.Context, string, int64, int64) ([]*domain.AnalyticsBucket, error) {
	return nil, errors.New("down")
}
func (failingBuckets) GetLastN(context.Context, string, int) ([]*domain.AnalyticsBucket, error) {
	return nil, errors.New("down")
}
func (failingBuckets) LatestBefore(context.Context, string, int64) (*domain.AnalyticsBucket, error) {
	return nil, errors.New("down")
}

func TestStoreFailureDegrades(t *testing.T) {
	srv := NewServer(Options{
		Buckets:   failingBuckets{},
		Pools:     memory.NewPoolStore(),
		Swaps:     memory.NewSwapRecordStore(),
		Liquidity: memory.NewLiquidityRecordStore(),
		Logger:    log.New(os.Stderr, "[api-test] ", 0),
		Now:       func() int64 { return testNow },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/pool/" + poolAddr + "/volume")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []volumePoint
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out)

	resp, err = http.Get(ts.URL + "/api/pool/" + poolAddr + "/summary24h")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sum summary24h
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Zero(t, sum.VolumeUsd)
}

// Registered once: promauto panics on duplicate registration within a
// test binary.
var apiMetrics = observability.NewMetrics("apitest")

func TestQueryMetricsRecorded(t *testing.T) {
	srv := NewServer(Options{
		Buckets:   failingBuckets{},
		Pools:     memory.NewPoolStore(),
		Swaps:     memory.NewSwapRecordStore(),
		Liquidity: memory.NewLiquidityRecordStore(),
		Metrics:   apiMetrics,
		Logger:    log.New(os.Stderr, "[api-test] ", 0),
		Now:       func() int64 { return testNow },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	errsBefore := testutil.ToFloat64(apiMetrics.DBQueryErrors.WithLabelValues("postgres", "buckets_last_n"))

	resp, err := http.Get(ts.URL + "/api/pool/" + poolAddr + "/volume")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, errsBefore+1,
		testutil.ToFloat64(apiMetrics.DBQueryErrors.WithLabelValues("postgres", "buckets_last_n")))

	// A healthy store records duration but no error.
	okBefore := testutil.ToFloat64(apiMetrics.DBQueryErrors.WithLabelValues("postgres", "swaps_recent"))
	resp, err = http.Get(ts.URL + "/api/pool/" + poolAddr + "/swaps")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, okBefore,
		testutil.ToFloat64(apiMetrics.DBQueryErrors.WithLabelValues("postgres", "swaps_recent")))

	// Both reads observed a latency sample.
	assert.Equal(t, 2, testutil.CollectAndCount(apiMetrics.DBQueryDuration))
}

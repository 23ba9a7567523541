// Package api serves the query surface: per-pool analytics series,
// 24h summaries, recent activity lists, charting bars and user streaks.
//
// Read-side failures degrade: unexpected store errors produce empty
// arrays or zeroed summaries rather than a 5xx, so a flaky database
// never breaks the consuming frontend.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/resample"
	"binamm-indexer/internal/storage"
	"binamm-indexer/internal/streak"
	"binamm-indexer/internal/tick"
)

const (
	defaultTake = 24
	maxTake     = 1000

	defaultListTake = 20
	maxListTake     = 100
)

// Options contains configuration for creating a Server.
type Options struct {
	Buckets   storage.BucketStore
	Pools     storage.PoolStore
	Swaps     storage.SwapRecordStore
	Liquidity storage.LiquidityRecordStore

	Cache    *redis.Client // optional bars response cache
	CacheTTL time.Duration

	Metrics *observability.Metrics
	Logger  *log.Logger

	// Now overrides the clock (Unix ms); nil means wall clock.
	Now func() int64
}

// Server exposes the HTTP query API.
type Server struct {
	buckets   storage.BucketStore
	pools     storage.PoolStore
	swaps     storage.SwapRecordStore
	liquidity storage.LiquidityRecordStore
	cache     *redis.Client
	cacheTTL  time.Duration
	metrics   *observability.Metrics
	logger    *log.Logger
	now       func() int64
}

// NewServer creates the query API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &Server{
		buckets:   opts.Buckets,
		pools:     opts.Pools,
		swaps:     opts.Swaps,
		liquidity: opts.Liquidity,
		cache:     opts.Cache,
		cacheTTL:  cacheTTL,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /api/pools", s.route("pools", s.handlePools))
	mux.HandleFunc("GET /api/pool/{address}/volume", s.route("pool_volume", s.handleVolume))
	mux.HandleFunc("GET /api/pool/{address}/tvl", s.route("pool_tvl", s.handleTvl))
	mux.HandleFunc("GET /api/pool/{address}/price", s.route("pool_price", s.handlePrice))
	mux.HandleFunc("GET /api/pool/{address}/summary24h", s.route("pool_summary", s.handleSummary24h))
	mux.HandleFunc("GET /api/pool/{address}/swaps", s.route("pool_swaps", s.handleSwaps))
	mux.HandleFunc("GET /api/pool/{address}/liquidity", s.route("pool_liquidity", s.handleLiquidity))
	mux.HandleFunc("GET /api/bars", s.route("bars", s.handleBars))
	mux.HandleFunc("GET /api/user/{address}/streak", s.route("user_streak", s.handleStreak))

	return mux
}

// route wraps a handler with request duration metrics.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(s.metrics.RequestDuration.WithLabelValues(name))
		defer timer.ObserveDuration()
		h(w, r)
	}
}

// observeDB records latency and failures for a store read.
func (s *Server) observeDB(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.DBQueryDuration.WithLabelValues("postgres", op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.DBQueryErrors.WithLabelValues("postgres", op).Inc()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

// takeParam parses ?take=N clamped to [1, max].
func takeParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("take")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// seriesRows fetches the hourly rows backing a resampled series request:
// take output points at the requested resolution. Errors degrade to nil.
func (s *Server) seriesRows(ctx context.Context, address string, take, pointsPerDay int) []*domain.AnalyticsBucket {
	threshold, err := resample.Threshold(pointsPerDay)
	if err != nil {
		return nil
	}
	start := time.Now()
	rows, err := s.buckets.GetLastN(ctx, address, take*threshold)
	s.observeDB("buckets_last_n", start, err)
	if err != nil {
		s.logger.Printf("series for %s: %v", address, err)
		return nil
	}
	return rows
}

// pointsPerDayParam parses ?resolution=N points per day; default is
// hourly passthrough (24 points per day).
func pointsPerDayParam(r *http.Request) int {
	raw := r.URL.Query().Get("resolution")
	if raw == "" {
		return 24
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 24
	}
	return n
}

type tokenItem struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type poolItem struct {
	Address   string    `json:"address"`
	BinStep   uint32    `json:"binStep"`
	Token0    tokenItem `json:"token0"`
	Token1    tokenItem `json:"token1"`
	CreatedAt int64     `json:"createdAt"`
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pools, err := s.pools.List(r.Context())
	s.observeDB("pools_list", start, err)
	if err != nil {
		s.logger.Printf("list pools: %v", err)
		pools = nil
	}

	out := make([]poolItem, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolItem{
			Address:   p.Address,
			BinStep:   p.BinStep,
			Token0:    tokenItem{Address: p.Token0.Address, Symbol: p.Token0.Symbol, Decimals: p.Token0.Decimals},
			Token1:    tokenItem{Address: p.Token1.Address, Symbol: p.Token1.Symbol, Decimals: p.Token1.Decimals},
			CreatedAt: p.CreatedAt,
		})
	}
	s.writeJSON(w, out)
}

type volumePoint struct {
	Date      int64   `json:"date"`
	VolumeUsd float64 `json:"volumeUsd"`
	FeesUsd   float64 `json:"feesUsd"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	take := takeParam(r, defaultTake, maxTake)
	pointsPerDay := pointsPerDayParam(r)

	rows := s.seriesRows(r.Context(), address, take, pointsPerDay)
	candles, err := resample.Candles(rows, pointsPerDay)
	if err != nil {
		candles = nil
	}

	out := make([]volumePoint, 0, len(candles))
	for _, c := range candles {
		out = append(out, volumePoint{Date: c.Date, VolumeUsd: c.VolumeUsd, FeesUsd: c.FeesUsd})
	}
	s.writeJSON(w, out)
}

type tvlPoint struct {
	Date         int64   `json:"date"`
	Token0Locked int64   `json:"token0Locked"`
	Token1Locked int64   `json:"token1Locked"`
	UsdLocked    float64 `json:"usdLocked"`
}

func (s *Server) handleTvl(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	take := takeParam(r, defaultTake, maxTake)

	// TVL is a running total, not additive: serve raw hourly points.
	start := time.Now()
	rows, err := s.buckets.GetLastN(r.Context(), address, take)
	s.observeDB("buckets_last_n", start, err)
	if err != nil {
		s.logger.Printf("tvl for %s: %v", address, err)
		rows = nil
	}

	out := make([]tvlPoint, 0, len(rows))
	for _, b := range rows {
		out = append(out, tvlPoint{
			Date:         b.BucketStart,
			Token0Locked: b.Token0Locked,
			Token1Locked: b.Token1Locked,
			UsdLocked:    b.UsdLocked,
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	take := takeParam(r, defaultTake, maxTake)
	pointsPerDay := pointsPerDayParam(r)

	rows := s.seriesRows(r.Context(), address, take, pointsPerDay)
	candles, err := resample.Candles(rows, pointsPerDay)
	if err != nil {
		candles = nil
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	s.writeJSON(w, candles)
}

type summary24h struct {
	VolumeUsd       float64 `json:"volumeUsd"`
	FeesUsd         float64 `json:"feesUsd"`
	VolumeChangePct float64 `json:"volumeChangePct"`
	FeesChangePct   float64 `json:"feesChangePct"`
}

func (s *Server) handleSummary24h(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	now := s.now()

	start := time.Now()
	rows, err := s.buckets.GetRange(r.Context(), address, now-2*tick.Day, now)
	s.observeDB("buckets_range", start, err)
	if err != nil {
		s.logger.Printf("summary for %s: %v", address, err)
		s.writeJSON(w, summary24h{})
		return
	}

	var cur, prev summary24h
	cutoff := now - tick.Day
	for _, b := range rows {
		if b.BucketStart >= cutoff {
			cur.VolumeUsd += b.VolumeUsd
			cur.FeesUsd += b.FeesUsd
		} else {
			prev.VolumeUsd += b.VolumeUsd
			prev.FeesUsd += b.FeesUsd
		}
	}

	cur.VolumeChangePct = changePct(cur.VolumeUsd, prev.VolumeUsd)
	cur.FeesChangePct = changePct(cur.FeesUsd, prev.FeesUsd)
	s.writeJSON(w, cur)
}

// changePct is the percent delta vs the prior window; a zero prior
// window reports 0 rather than infinity.
func changePct(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

type swapItem struct {
	UserAddress string  `json:"userAddress"`
	SwapForY    bool    `json:"swapForY"`
	BinID       uint32  `json:"binId"`
	AmountIn    int64   `json:"amountIn"`
	AmountOut   int64   `json:"amountOut"`
	UsdValue    float64 `json:"usdValue"`
	Timestamp   int64   `json:"timestamp"`
	TxHash      string  `json:"txHash"`
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	take := takeParam(r, defaultListTake, maxListTake)

	start := time.Now()
	records, err := s.swaps.GetRecent(r.Context(), address, take)
	s.observeDB("swaps_recent", start, err)
	if err != nil {
		s.logger.Printf("swaps for %s: %v", address, err)
		records = nil
	}

	out := make([]swapItem, 0, len(records))
	for _, rec := range records {
		out = append(out, swapItem{
			UserAddress: rec.UserAddress,
			SwapForY:    rec.SwapForY,
			BinID:       rec.BinID,
			AmountIn:    rec.AmountIn,
			AmountOut:   rec.AmountOut,
			UsdValue:    rec.UsdValue,
			Timestamp:   rec.Timestamp,
			TxHash:      rec.TxHash,
		})
	}
	s.writeJSON(w, out)
}

type liquidityItem struct {
	UserAddress string  `json:"userAddress"`
	Kind        string  `json:"kind"`
	BinID       uint32  `json:"binId"`
	Amount0     int64   `json:"amount0"`
	Amount1     int64   `json:"amount1"`
	UsdValue    float64 `json:"usdValue"`
	Timestamp   int64   `json:"timestamp"`
	TxHash      string  `json:"txHash"`
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	take := takeParam(r, defaultListTake, maxListTake)

	start := time.Now()
	records, err := s.liquidity.GetRecent(r.Context(), address, take)
	s.observeDB("liquidity_recent", start, err)
	if err != nil {
		s.logger.Printf("liquidity for %s: %v", address, err)
		records = nil
	}

	out := make([]liquidityItem, 0, len(records))
	for _, rec := range records {
		out = append(out, liquidityItem{
			UserAddress: rec.UserAddress,
			Kind:        rec.Kind,
			BinID:       rec.BinID,
			Amount0:     rec.Amount0,
			Amount1:     rec.Amount1,
			UsdValue:    rec.UsdValue,
			Timestamp:   rec.Timestamp,
			TxHash:      rec.TxHash,
		})
	}
	s.writeJSON(w, out)
}

type streakResponse struct {
	Address string `json:"address"`
	Streak  int    `json:"streak"`
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	start := time.Now()
	dates, err := s.swaps.GetUserActivity(r.Context(), address)
	s.observeDB("user_activity", start, err)
	if err != nil {
		s.logger.Printf("streak for %s: %v", address, err)
		dates = nil
	}

	s.writeJSON(w, streakResponse{
		Address: address,
		Streak:  streak.WeeklyStreak(s.now(), dates),
	})
}

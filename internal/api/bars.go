package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/tick"
)

// Supported charting resolutions mapped to their window in ms. The
// store's finest granularity is hourly, so sub-hour resolutions serve
// hourly bars.
var resolutionWindows = map[string]int64{
	"5":   tick.Hour,
	"15":  tick.Hour,
	"30":  tick.Hour,
	"60":  tick.Hour,
	"120": 2 * tick.Hour,
	"240": 4 * tick.Hour,
	"360": 6 * tick.Hour,
	"480": 8 * tick.Hour,
	"720": 12 * tick.Hour,
	"1D":  tick.Day,
	"3D":  3 * tick.Day,
	"1W":  tick.Week,
	"1M":  30 * tick.Day,
}

// barsResponse follows the charting-library UDF convention: parallel
// arrays ascending by time, with t in epoch seconds.
type barsResponse struct {
	S      string    `json:"s"`
	T      []int64   `json:"t,omitempty"`
	O      []float64 `json:"o,omitempty"`
	H      []float64 `json:"h,omitempty"`
	L      []float64 `json:"l,omitempty"`
	C      []float64 `json:"c,omitempty"`
	V      []float64 `json:"v,omitempty"`
	ErrMsg string    `json:"errmsg,omitempty"`
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	resolution := q.Get("resolution")

	window, ok := resolutionWindows[resolution]
	if !ok {
		s.writeJSON(w, barsResponse{S: "error", ErrMsg: fmt.Sprintf("unsupported resolution %q", resolution)})
		return
	}
	if symbol == "" {
		s.writeJSON(w, barsResponse{S: "error", ErrMsg: "symbol is required"})
		return
	}

	from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
	to, _ := strconv.ParseInt(q.Get("to"), 10, 64)
	countback, _ := strconv.Atoi(q.Get("countback"))
	if to <= 0 {
		s.writeJSON(w, barsResponse{S: "error", ErrMsg: "to is required"})
		return
	}

	cacheKey := fmt.Sprintf("bars:%s:%s:%d:%d:%d", symbol, resolution, from, to, countback)
	if cached, ok := s.cachedBars(r.Context(), cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	resp := s.buildBars(r.Context(), symbol, window, from*1000, to*1000, countback)

	body, err := json.Marshal(resp)
	if err != nil {
		s.writeJSON(w, barsResponse{S: "error", ErrMsg: "internal error"})
		return
	}
	s.storeBars(r.Context(), cacheKey, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// buildBars groups hourly buckets into window-aligned bars. Volume is
// summed, high/low reduced, open taken from the first and close from
// the last hourly row in the window.
func (s *Server) buildBars(ctx context.Context, symbol string, window, fromMs, toMs int64, countback int) barsResponse {
	if countback > 0 {
		// Countback overrides from: the library wants the last N bars
		// at or before to.
		fromMs = toMs - int64(countback)*window
	}

	start := time.Now()
	rows, err := s.buckets.GetRange(ctx, symbol, fromMs, toMs)
	s.observeDB("buckets_range", start, err)
	if err != nil {
		s.logger.Printf("bars for %s: %v", symbol, err)
		return barsResponse{S: "error", ErrMsg: "query failed"}
	}
	if len(rows) == 0 {
		return barsResponse{S: "no_data"}
	}

	bars := groupBars(rows, window)
	if countback > 0 && len(bars.T) > countback {
		n := len(bars.T)
		bars.T = bars.T[n-countback:]
		bars.O = bars.O[n-countback:]
		bars.H = bars.H[n-countback:]
		bars.L = bars.L[n-countback:]
		bars.C = bars.C[n-countback:]
		bars.V = bars.V[n-countback:]
	}
	return bars
}

func groupBars(rows []*domain.AnalyticsBucket, window int64) barsResponse {
	resp := barsResponse{S: "ok"}

	var cur int64 = -1
	for _, b := range rows {
		start := b.BucketStart - floorMod(b.BucketStart, window)
		if start != cur {
			cur = start
			resp.T = append(resp.T, start/1000)
			resp.O = append(resp.O, b.Open)
			resp.H = append(resp.H, b.High)
			resp.L = append(resp.L, b.Low)
			resp.C = append(resp.C, b.Close)
			resp.V = append(resp.V, b.VolumeUsd)
			continue
		}

		last := len(resp.T) - 1
		if b.High > resp.H[last] {
			resp.H[last] = b.High
		}
		if b.Low < resp.L[last] {
			resp.L[last] = b.Low
		}
		resp.C[last] = b.Close
		resp.V[last] += b.VolumeUsd
	}
	return resp
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func (s *Server) cachedBars(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		s.countCache("miss")
		return nil, false
	}
	s.countCache("hit")
	return body, true
}

func (s *Server) storeBars(ctx context.Context, key string, body []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, body, s.cacheTTL).Err(); err != nil {
		s.logger.Printf("bars cache set: %v", err)
	}
}

func (s *Server) countCache(outcome string) {
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(outcome).Inc()
	}
}

package domain

// AnalyticsBucket is one hourly candle plus volume, fee and reserve
// aggregates for a pool. Corresponds to analytics_buckets table in
// PostgreSQL, keyed by (pool_address, bucket_start).
//
// Token0Locked/Token1Locked are running raw reserve totals after the
// last event folded into this bucket; UsdLocked is the running USD
// total. Buckets synthesized to fill gaps carry the previous close as
// all four price points and zero deltas.
type AnalyticsBucket struct {
	PoolAddress  string
	BucketStart  int64 // hour-aligned Unix ms
	Open         float64
	High         float64
	Low          float64
	Close        float64
	VolumeUsd    float64
	FeesUsd      float64
	Token0Locked int64
	Token1Locked int64
	UsdLocked    float64
}

// Candle is one resampled OHLC row as served by the API.
type Candle struct {
	Date      int64   `json:"date"` // Unix ms of the last source row
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	VolumeUsd float64 `json:"volumeUsd"`
	FeesUsd   float64 `json:"feesUsd"`
}

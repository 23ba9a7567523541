// Package resample folds hourly analytics buckets into coarser bars for
// chart-serving endpoints.
package resample

import (
	"errors"

	"binamm-indexer/internal/domain"
	"binamm-indexer/internal/tick"
)

// ErrInvalidResolution is returned when pointsPerDay does not divide a
// day into a whole number of hourly rows.
var ErrInvalidResolution = errors.New("resample: invalid resolution")

const ticksPerDay = int(tick.Day / tick.Hour)

// Threshold returns how many hourly rows make up one output bar at the
// given resolution (1 point/day -> 24 rows, 4 points/day -> 6 rows).
func Threshold(pointsPerDay int) (int, error) {
	if pointsPerDay <= 0 || ticksPerDay%pointsPerDay != 0 {
		return 0, ErrInvalidResolution
	}
	return ticksPerDay / pointsPerDay, nil
}

// Candles folds an ordered hourly bucket sequence into bars of
// threshold = 24/pointsPerDay rows each. The first bar opens at its own
// first raw open; every later bar carries the previous bar's close as
// its open so resampling never introduces open/close discontinuities.
// A trailing partial window is dropped. The input is not mutated and
// re-running on the same input yields identical output.
func Candles(rows []*domain.AnalyticsBucket, pointsPerDay int) ([]domain.Candle, error) {
	threshold, err := Threshold(pointsPerDay)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candle, 0, len(rows)/threshold)
	for start := 0; start+threshold <= len(rows); start += threshold {
		group := rows[start : start+threshold]

		c := domain.Candle{
			Date:  group[len(group)-1].BucketStart,
			Open:  group[0].Open,
			High:  group[0].High,
			Low:   group[0].Low,
			Close: group[len(group)-1].Close,
		}
		if len(out) > 0 {
			c.Open = out[len(out)-1].Close
		}
		for _, b := range group {
			if b.High > c.High {
				c.High = b.High
			}
			if b.Low < c.Low {
				c.Low = b.Low
			}
			c.VolumeUsd += b.VolumeUsd
			c.FeesUsd += b.FeesUsd
		}
		out = append(out, c)
	}
	return out, nil
}

// Package tick maps millisecond timestamps to their canonical aggregation
// buckets. All functions operate in UTC and are pure.
package tick

import "time"

// Hour is one aggregation tick in milliseconds.
const Hour = int64(time.Hour / time.Millisecond)

// Day is 24 ticks in milliseconds.
const Day = 24 * Hour

// Week is 7 days in milliseconds.
const Week = 7 * Day

// HourStart truncates a millisecond timestamp to the start of its UTC hour.
func HourStart(ms int64) int64 {
	return ms - mod(ms, Hour)
}

// DayStart truncates a millisecond timestamp to the start of its UTC day.
func DayStart(ms int64) int64 {
	return ms - mod(ms, Day)
}

// MondayOnOrBefore returns the start of the most recent UTC Monday at or
// before the given timestamp.
func MondayOnOrBefore(ms int64) int64 {
	day := DayStart(ms)
	for time.UnixMilli(day).UTC().Weekday() != time.Monday {
		day -= Day
	}
	return day
}

// Hours enumerates hour-bucket boundaries in [from, to], both ends
// hour-aligned by the caller or truncated here.
func Hours(from, to int64) []int64 {
	start := HourStart(from)
	end := HourStart(to)
	if end < start {
		return nil
	}
	out := make([]int64, 0, (end-start)/Hour+1)
	for t := start; t <= end; t += Hour {
		out = append(out, t)
	}
	return out
}

// mod is a floored modulo so pre-epoch timestamps truncate downward.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

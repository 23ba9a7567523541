package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(t time.Time) int64 { return t.UnixMilli() }

func TestHourStart(t *testing.T) {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	want := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, ms(want), HourStart(ms(ts)))
}

func TestHourStart_AlreadyAligned(t *testing.T) {
	ts := ms(time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, ts, HourStart(ts))
}

func TestDayStart(t *testing.T) {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, ms(want), DayStart(ms(ts)))
}

func TestMondayOnOrBefore(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "thursday",
			in:   time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
			want: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monday midnight stays",
			in:   time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monday afternoon truncates to same day",
			in:   time.Date(2024, 3, 11, 18, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday goes back six days",
			in:   time.Date(2024, 3, 17, 23, 59, 59, 0, time.UTC),
			want: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MondayOnOrBefore(ms(tt.in))
			assert.Equal(t, ms(tt.want), got)

			wd := time.UnixMilli(got).UTC().Weekday()
			assert.Equal(t, time.Monday, wd)
		})
	}
}

func TestHours(t *testing.T) {
	from := ms(time.Date(2024, 3, 14, 10, 30, 0, 0, time.UTC))
	to := ms(time.Date(2024, 3, 14, 13, 5, 0, 0, time.UTC))

	got := Hours(from, to)
	require.Len(t, got, 4)
	assert.Equal(t, HourStart(from), got[0])
	assert.Equal(t, HourStart(to), got[3])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, Hour, got[i]-got[i-1])
	}
}

func TestHours_EmptyRange(t *testing.T) {
	from := ms(time.Date(2024, 3, 14, 13, 0, 0, 0, time.UTC))
	to := ms(time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC))
	assert.Nil(t, Hours(from, to))
}

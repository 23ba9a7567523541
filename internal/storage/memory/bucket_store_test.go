package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binamm-indexer/internal/storage"
)

func TestBucketStore_SeedOnFirstUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewBucketStore()

	err := s.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    "pool1",
		BucketStart:    3_600_000,
		Price:          1.5,
		VolumeUsdDelta: 100,
		FeesUsdDelta:   1,
	})
	require.NoError(t, err)

	b, err := s.Get(ctx, "pool1", 3_600_000)
	require.NoError(t, err)
	assert.Equal(t, 1.5, b.Open)
	assert.Equal(t, 1.5, b.High)
	assert.Equal(t, 1.5, b.Low)
	assert.Equal(t, 1.5, b.Close)
	assert.Equal(t, 100.0, b.VolumeUsd)
	assert.Equal(t, 1.0, b.FeesUsd)
}

func TestBucketStore_UpdateExtendsHighLowAndIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewBucketStore()

	updates := []storage.BucketUpdate{
		{PoolAddress: "pool1", BucketStart: 0, Price: 1.0, VolumeUsdDelta: 10},
		{PoolAddress: "pool1", BucketStart: 0, Price: 2.0, VolumeUsdDelta: 20},
		{PoolAddress: "pool1", BucketStart: 0, Price: 0.5, VolumeUsdDelta: 5},
		{PoolAddress: "pool1", BucketStart: 0, Price: 1.2, VolumeUsdDelta: 1},
	}
	for _, u := range updates {
		require.NoError(t, s.UpsertIncrement(ctx, u))
	}

	b, err := s.Get(ctx, "pool1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.Open)
	assert.Equal(t, 2.0, b.High)
	assert.Equal(t, 0.5, b.Low)
	assert.Equal(t, 1.2, b.Close)
	assert.Equal(t, 36.0, b.VolumeUsd)

	// OHLC invariant
	assert.LessOrEqual(t, b.Low, b.Open)
	assert.LessOrEqual(t, b.Low, b.Close)
	assert.GreaterOrEqual(t, b.High, b.Open)
	assert.GreaterOrEqual(t, b.High, b.Close)
}

func TestBucketStore_LatestBefore(t *testing.T) {
	ctx := context.Background()
	s := NewBucketStore()

	for _, start := range []int64{0, 3_600_000, 7_200_000} {
		require.NoError(t, s.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress: "pool1", BucketStart: start, Price: 1,
		}))
	}

	b, err := s.LatestBefore(ctx, "pool1", 7_200_000)
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), b.BucketStart)

	_, err = s.LatestBefore(ctx, "pool1", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.LatestBefore(ctx, "unknown", 7_200_000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBucketStore_GetRangeOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewBucketStore()

	for _, start := range []int64{7_200_000, 0, 3_600_000} {
		require.NoError(t, s.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress: "pool1", BucketStart: start, Price: 1,
		}))
	}

	got, err := s.GetRange(ctx, "pool1", 0, 7_200_000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].BucketStart)
	assert.Equal(t, int64(3_600_000), got[1].BucketStart)
	assert.Equal(t, int64(7_200_000), got[2].BucketStart)
}

func TestBucketStore_GetLastN(t *testing.T) {
	ctx := context.Background()
	s := NewBucketStore()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress: "pool1", BucketStart: i * 3_600_000, Price: 1,
		}))
	}

	got, err := s.GetLastN(ctx, "pool1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3 * 3_600_000), got[0].BucketStart)
	assert.Equal(t, int64(4 * 3_600_000), got[1].BucketStart)
}

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binamm-indexer/internal/storage"
	"binamm-indexer/internal/storage/postgres"
	"binamm-indexer/internal/tick"
)

func TestBucketStore_SeedAndUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewBucketStore(pool)

	const addr = "AU1bucketpool"
	start := int64(0)

	// Seed: all four OHLC fields take the trigger price.
	err := store.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    addr,
		BucketStart:    start,
		Price:          10.0,
		VolumeUsdDelta: 100,
		FeesUsdDelta:   1,
	})
	require.NoError(t, err)

	b, err := store.Get(ctx, addr, start)
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Open)
	assert.Equal(t, 10.0, b.High)
	assert.Equal(t, 10.0, b.Low)
	assert.Equal(t, 10.0, b.Close)
	assert.Equal(t, 100.0, b.VolumeUsd)
	assert.Equal(t, 1.0, b.FeesUsd)

	// Update downwards: low follows, high and open hold.
	err = store.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    addr,
		BucketStart:    start,
		Price:          8.0,
		VolumeUsdDelta: 50,
		FeesUsdDelta:   0.5,
	})
	require.NoError(t, err)

	// Update upwards past the seed: high follows.
	err = store.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress: addr,
		BucketStart: start,
		Price:       12.0,
	})
	require.NoError(t, err)

	b, err = store.Get(ctx, addr, start)
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Open)
	assert.Equal(t, 12.0, b.High)
	assert.Equal(t, 8.0, b.Low)
	assert.Equal(t, 12.0, b.Close)
	assert.Equal(t, 150.0, b.VolumeUsd)
	assert.Equal(t, 1.5, b.FeesUsd)
}

func TestBucketStore_LockedReserveDeltas(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewBucketStore(pool)

	const addr = "AU1tvlpool"

	err := store.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    addr,
		BucketStart:    0,
		Price:          1.0,
		Token0Delta:    1000,
		Token1Delta:    2000,
		UsdLockedDelta: 30,
	})
	require.NoError(t, err)

	err = store.UpsertIncrement(ctx, storage.BucketUpdate{
		PoolAddress:    addr,
		BucketStart:    0,
		Price:          1.0,
		Token0Delta:    -400,
		Token1Delta:    -800,
		UsdLockedDelta: -12,
	})
	require.NoError(t, err)

	b, err := store.Get(ctx, addr, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(600), b.Token0Locked)
	assert.Equal(t, int64(1200), b.Token1Locked)
	assert.InDelta(t, 18.0, b.UsdLocked, 1e-9)
}

func TestBucketStore_RangeQueries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewBucketStore(pool)

	const addr = "AU1rangepool"
	for i := int64(0); i < 5; i++ {
		err := store.UpsertIncrement(ctx, storage.BucketUpdate{
			PoolAddress: addr,
			BucketStart: i * tick.Hour,
			Price:       float64(i + 1),
		})
		require.NoError(t, err)
	}

	// GetRange is inclusive on both ends, ascending.
	rows, err := store.GetRange(ctx, addr, tick.Hour, 3*tick.Hour)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tick.Hour, rows[0].BucketStart)
	assert.Equal(t, 3*tick.Hour, rows[2].BucketStart)

	// GetLastN returns the newest n, still ascending.
	rows, err = store.GetLastN(ctx, addr, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3*tick.Hour, rows[0].BucketStart)
	assert.Equal(t, 4*tick.Hour, rows[1].BucketStart)

	// LatestBefore is strict.
	b, err := store.LatestBefore(ctx, addr, 2*tick.Hour)
	require.NoError(t, err)
	assert.Equal(t, tick.Hour, b.BucketStart)

	_, err = store.LatestBefore(ctx, addr, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBucketStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewBucketStore(pool)

	_, err := store.Get(context.Background(), "AU1missing", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsfuse/pkg/types"
)

func seedVectors(t *testing.T, s *Store, vectors map[string][]float32) {
	for key, v := range vectors {
		require.NoError(t, s.UpsertVector(context.Background(), key, v))
	}
}

func TestSearch_Exact(t *testing.T) {
	store := setupTestDB(t)
	seedVectors(t, store, map[string][]float32{
		"same":     {1, 0, 0},
		"close":    {0.9, 0.1, 0},
		"orthog":   {0, 1, 0},
		"opposite": {-1, 0, 0},
	})

	matches, err := store.Search(context.Background(), []float32{1, 0, 0}, 3, true)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "same", matches[0].Key)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
	assert.Equal(t, "close", matches[1].Key)
	assert.Equal(t, "orthog", matches[2].Key)
	assert.InDelta(t, 1, matches[2].Distance, 1e-6)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestSearch_TiesOrderedByKey(t *testing.T) {
	store := setupTestDB(t)
	seedVectors(t, store, map[string][]float32{
		"c": {0, 1},
		"a": {0, 1},
		"b": {0, 1},
		"z": {1, 0},
	})

	matches, err := store.Search(context.Background(), []float32{0, 1}, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []types.Match{{Key: "a", Distance: 0}, {Key: "b", Distance: 0}}, matches)
}

func TestSearch_EdgeCases(t *testing.T) {
	store := setupTestDB(t)
	seedVectors(t, store, map[string][]float32{
		"ok":    {1, 0},
		"wide":  {1, 0, 0},
		"zeros": {0, 0},
	})
	ctx := context.Background()

	t.Run("k larger than index", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{1, 0}, 100, true)
		require.NoError(t, err)
		// "wide" has a different dimension and is skipped
		require.Len(t, matches, 2)
		assert.Equal(t, "ok", matches[0].Key)
		assert.Equal(t, "zeros", matches[1].Key)
		assert.InDelta(t, 1, matches[1].Distance, 1e-6)
	})

	t.Run("zero k", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{1, 0}, 0, true)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := store.Search(ctx, nil, 5, true)
		assert.ErrorIs(t, err, types.ErrOracleFailure)
	})
}

func TestSearch_ApproximateMatchesExact(t *testing.T) {
	store := setupTestDB(t)
	seedVectors(t, store, map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.5, 0.5, 0},
		"c": {0, 0, 1},
	})
	ctx := context.Background()
	q := []float32{1, 0.2, 0}

	exact, err := store.Search(ctx, q, 3, true)
	require.NoError(t, err)
	approx, err := store.Search(ctx, q, 3, false)
	require.NoError(t, err)

	require.Len(t, approx, len(exact))
	for i := range exact {
		assert.Equal(t, exact[i].Key, approx[i].Key)
		assert.InDelta(t, exact[i].Distance, approx[i].Distance, 1e-5)
	}
}

func TestSearch_ClosedStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Search(context.Background(), []float32{1}, 1, true)
	assert.ErrorIs(t, err, types.ErrOracleFailure)
}

func TestUpsertVector_Replaces(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertVector(ctx, "k", []float32{1, 0}))
	require.NoError(t, store.UpsertVector(ctx, "k", []float32{0, 1}))

	n, err := store.VectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	matches, err := store.Search(ctx, []float32{0, 1}, 1, true)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
}

func TestVectorSerialization(t *testing.T) {
	vectors := [][]float32{
		{},
		{1.5},
		{0.1, -0.2, 3.4028235e38, float32(math.SmallestNonzeroFloat32)},
	}
	for _, v := range vectors {
		blob := SerializeVector(v)
		assert.Len(t, blob, len(v)*4)
		assert.Equal(t, v, DeserializeVector(blob))
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	// Zero vectors and dimension mismatch have no similarity
	assert.InDelta(t, 1, CosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1}, []float32{1, 0}), 1e-9)
}

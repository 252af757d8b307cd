package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nderr "github.com/notedex/notedex/internal/errors"
)

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestVectorIndex_AppendAssignsSequentialPositions(t *testing.T) {
	idx, err := NewVectorIndex(4)
	require.NoError(t, err)

	for want := uint64(0); want < 3; want++ {
		pos, err := idx.Append(unitVec(4, int(want)))
		require.NoError(t, err)
		assert.Equal(t, want, pos, "position equals count before append")
	}
	assert.EqualValues(t, 3, idx.Count())
}

func TestVectorIndex_RejectsWrongDimensions(t *testing.T) {
	idx, err := NewVectorIndex(4)
	require.NoError(t, err)

	_, err = idx.Append([]float32{1, 2})
	assert.Error(t, err)

	_, err = idx.Search([]float32{1, 2}, 5)
	assert.Error(t, err)
}

func TestVectorIndex_SearchFindsNearest(t *testing.T) {
	idx, err := NewVectorIndex(4)
	require.NoError(t, err)

	_, err = idx.Append([]float32{1, 0, 0, 0})
	require.NoError(t, err)
	_, err = idx.Append([]float32{0, 1, 0, 0})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0.9, 0.1, 0, 0}, 1)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.EqualValues(t, 0, hits[0].Position)
	assert.Greater(t, hits[0].Score, float32(0.5))
}

func TestVectorIndex_EmptySearchReturnsNothing(t *testing.T) {
	idx, err := NewVectorIndex(4)
	require.NoError(t, err)

	hits, err := idx.Search(unitVec(4, 0), 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSaveLoadIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewVectorIndex(4)
	require.NoError(t, err)
	_, err = idx.Append([]float32{1, 0, 0, 0})
	require.NoError(t, err)
	_, err = idx.Append([]float32{0, 1, 0, 0})
	require.NoError(t, err)
	mapping := PositionMap{0: "n1", 1: "n2"}

	require.NoError(t, SaveIndex(dir, idx, mapping))

	loaded, loadedMapping, err := LoadIndex(dir)
	require.NoError(t, err)

	assert.EqualValues(t, 2, loaded.Count())
	assert.Equal(t, 4, loaded.Dimensions())
	assert.Equal(t, mapping, loadedMapping)

	// Appends after reload continue the position sequence.
	pos, err := loaded.Append([]float32{0, 0, 1, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pos)
}

func TestLoadIndex_MissingArtifactsAreDistinctError(t *testing.T) {
	t.Run("nothing on disk", func(t *testing.T) {
		_, _, err := LoadIndex(t.TempDir())

		require.Error(t, err)
		assert.True(t, nderr.HasCode(err, nderr.ErrCodeIndexMissing))
	})

	t.Run("mapping missing", func(t *testing.T) {
		dir := t.TempDir()
		idx, err := NewVectorIndex(4)
		require.NoError(t, err)
		require.NoError(t, SaveIndex(dir, idx, PositionMap{}))
		require.NoError(t, os.Remove(filepath.Join(dir, MappingFileName)))

		_, _, err = LoadIndex(dir)

		assert.True(t, nderr.HasCode(err, nderr.ErrCodeIndexMissing))
	})

	t.Run("index binary missing", func(t *testing.T) {
		dir := t.TempDir()
		idx, err := NewVectorIndex(4)
		require.NoError(t, err)
		require.NoError(t, SaveIndex(dir, idx, PositionMap{}))
		require.NoError(t, os.Remove(filepath.Join(dir, IndexFileName)))

		_, _, err = LoadIndex(dir)

		assert.True(t, nderr.HasCode(err, nderr.ErrCodeIndexMissing))
	})
}

func TestPositionMap_JSONUsesStringKeys(t *testing.T) {
	mapping := PositionMap{0: "n1", 17: "n2"}

	data, err := json.Marshal(mapping)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":"n1","17":"n2"}`, string(data))

	var back PositionMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, mapping, back)
}

func TestPositionMap_PositionFor(t *testing.T) {
	mapping := PositionMap{0: "n1", 5: "n2"}

	pos, ok := mapping.PositionFor("n2")
	require.True(t, ok)
	assert.EqualValues(t, 5, pos)

	_, ok = mapping.PositionFor("n3")
	assert.False(t, ok)
}

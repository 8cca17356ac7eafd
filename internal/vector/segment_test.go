package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return DefaultConfig(4, MetricCosine)
}

func TestSegment_AddAndSearch(t *testing.T) {
	seg := newSegment(0, testConfig())

	require.NoError(t, seg.add("a", []float32{1, 0, 0, 0}, map[string]any{"title": "a"}))
	require.NoError(t, seg.add("b", []float32{0, 1, 0, 0}, map[string]any{"title": "b"}))
	require.NoError(t, seg.add("c", []float32{0.9, 0.1, 0, 0}, map[string]any{"title": "c"}))

	results, err := seg.search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestSegment_DimensionMismatch(t *testing.T) {
	seg := newSegment(0, testConfig())
	err := seg.add("a", []float32{1, 0}, nil)
	assert.Error(t, err)
}

func TestSegment_SealedRejectsWrites(t *testing.T) {
	seg := newSegment(0, testConfig())
	require.NoError(t, seg.add("a", []float32{1, 0, 0, 0}, nil))

	seg.seal()
	err := seg.add("b", []float32{0, 1, 0, 0}, nil)
	assert.Error(t, err)
}

func TestSegment_Tombstone(t *testing.T) {
	seg := newSegment(0, testConfig())
	require.NoError(t, seg.add("a", []float32{1, 0, 0, 0}, nil))

	assert.True(t, seg.tombstone("a"))
	assert.False(t, seg.contains("a"))
	assert.False(t, seg.tombstone("a")) // already gone

	results, err := seg.search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSegment_IsCompactionCandidate(t *testing.T) {
	seg := newSegment(0, testConfig())
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, seg.add(id, []float32{1, 0, 0, 0}, nil))
	}

	// Unsealed segments are never compaction candidates regardless of ratio.
	seg.tombstone("a")
	assert.False(t, seg.isCompactionCandidate(0.1))

	seg.seal()
	// 1/5 = 0.2, not strictly greater than a 0.2 threshold.
	assert.False(t, seg.isCompactionCandidate(0.2))
	assert.True(t, seg.isCompactionCandidate(0.1))
}

func TestSegment_PersistAndRestore(t *testing.T) {
	dir := t.TempDir()
	seg := newSegment(0, testConfig())
	require.NoError(t, seg.add("a", []float32{1, 0, 0, 0}, map[string]any{"title": "a"}))
	require.NoError(t, seg.add("b", []float32{0, 1, 0, 0}, map[string]any{"title": "b"}))
	seg.tombstone("b")

	require.NoError(t, seg.persist(dir))

	restored, err := restoreSegment(dir, 0)
	require.NoError(t, err)

	assert.True(t, restored.contains("a"))
	assert.False(t, restored.contains("b"))
	assert.Equal(t, 1, restored.deletedCount())

	results, err := restored.search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSegment_LiveDocsExcludesTombstoned(t *testing.T) {
	seg := newSegment(0, testConfig())
	require.NoError(t, seg.add("a", []float32{1, 0, 0, 0}, nil))
	require.NoError(t, seg.add("b", []float32{0, 1, 0, 0}, nil))
	seg.tombstone("b")

	docs, err := seg.liveDocs()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

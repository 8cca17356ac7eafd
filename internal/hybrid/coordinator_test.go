package hybrid

import (
	"context"
	"testing"

	"github.com/prism-db/prism/internal/textindex"
	"github.com/prism-db/prism/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_TextOnly(t *testing.T) {
	text, err := textindex.NewBleveBackend("", textindex.DefaultConfig([]string{"body"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = text.Close() })

	require.NoError(t, text.Index(context.Background(), []textindex.Document{
		{ID: "a", Fields: map[string]any{"body": "hybrid search engine"}},
		{ID: "b", Fields: map[string]any{"body": "unrelated document"}},
	}))

	coord := NewCoordinator(text, nil, MetricCosine)
	outcome, err := coord.Search(context.Background(), Request{TextQuery: "hybrid search", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Results)
	assert.Equal(t, "a", outcome.Results[0].ID)
}

func TestCoordinator_VectorOnly(t *testing.T) {
	cfg := vector.DefaultConfig(4, vector.MetricCosine)
	idx := vector.NewShardedIndex(cfg)

	require.NoError(t, idx.Index(context.Background(), []vector.Document{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
	}))

	coord := NewCoordinator(nil, idx, MetricCosine)
	outcome, err := coord.Search(context.Background(), Request{Vector: []float32{1, 0, 0, 0}, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Results)
	assert.Equal(t, "a", outcome.Results[0].ID)
}

func TestCoordinator_HybridRRFMergesBothSources(t *testing.T) {
	text, err := textindex.NewBleveBackend("", textindex.DefaultConfig([]string{"body"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = text.Close() })

	require.NoError(t, text.Index(context.Background(), []textindex.Document{
		{ID: "a", Fields: map[string]any{"body": "hybrid search engine"}},
	}))

	cfg := vector.DefaultConfig(4, vector.MetricCosine)
	idx := vector.NewShardedIndex(cfg)
	require.NoError(t, idx.Index(context.Background(), []vector.Document{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
	}))

	coord := NewCoordinator(text, idx, MetricCosine)
	outcome, err := coord.Search(context.Background(), Request{
		TextQuery: "hybrid search",
		Vector:    []float32{1, 0, 0, 0},
		Strategy:  StrategyRRF,
		RRFK:      60,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "a", outcome.Results[0].ID)
	assert.True(t, outcome.Results[0].InBoth)
}

func TestCoordinator_MinScoreFilter(t *testing.T) {
	cfg := vector.DefaultConfig(4, vector.MetricCosine)
	idx := vector.NewShardedIndex(cfg)
	require.NoError(t, idx.Index(context.Background(), []vector.Document{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{-1, 0, 0, 0}},
	}))

	coord := NewCoordinator(nil, idx, MetricCosine)
	min := 0.5
	outcome, err := coord.Search(context.Background(), Request{
		Vector:   []float32{1, 0, 0, 0},
		Limit:    5,
		MinScore: &min,
	})
	require.NoError(t, err)
	for _, r := range outcome.Results {
		assert.GreaterOrEqual(t, r.Score, min)
	}
}

func TestCoordinator_ScoreExprRescoresAndResorts(t *testing.T) {
	cfg := vector.DefaultConfig(4, vector.MetricCosine)
	idx := vector.NewShardedIndex(cfg)
	require.NoError(t, idx.Index(context.Background(), []vector.Document{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Fields: map[string]any{"likes": 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0, 0}, Fields: map[string]any{"likes": 1000}},
	}))

	coord := NewCoordinator(nil, idx, MetricCosine)
	outcome, err := coord.Search(context.Background(), Request{
		Vector:    []float32{1, 0, 0, 0},
		Limit:     5,
		ScoreExpr: "_score * log(likes+1)",
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "b", outcome.Results[0].ID)
}

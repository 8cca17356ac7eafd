package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-db/prism/internal/cluster/federation"
	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/router"
	"github.com/prism-db/prism/internal/cluster/state"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/hybrid"
)

type fakeRemote struct {
	byAddr map[string]*hybrid.Outcome
	errs   map[string]error
}

func (f *fakeRemote) Search(ctx context.Context, addr, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error) {
	if err, ok := f.errs[addr]; ok {
		return nil, err
	}
	return f.byAddr[addr], nil
}

type fakeLocal struct {
	outcome *hybrid.Outcome
	err     error
}

func (f *fakeLocal) Search(ctx context.Context, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error) {
	return f.outcome, f.err
}

func clusterWithShards(t *testing.T, nodeCount, shardCount int) *state.Cluster {
	t.Helper()
	c := state.New()
	for i := 0; i < nodeCount; i++ {
		c.RegisterNode(placement.NodeInfo{
			NodeID:  nodeName(i),
			Address: nodeAddr(i),
			Healthy: true,
		})
	}
	for i := 0; i < shardCount; i++ {
		c.AssignShard(placement.ShardAssignment{
			ShardID:     shardName(i),
			Collection:  "docs",
			ShardNumber: i,
			PrimaryNode: nodeName(i % nodeCount),
			State:       placement.ShardActive,
		})
	}
	return c
}

func nodeName(i int) string { return "node-" + string(rune('a'+i)) }
func nodeAddr(i int) string { return "10.0.0." + string(rune('1'+i)) + ":9080" }
func shardName(i int) string { return "shard-" + string(rune('0'+i)) }

func TestCoordinator_Search_FansOutAndMerges(t *testing.T) {
	cluster := clusterWithShards(t, 2, 2)
	r := router.New(cluster)

	remote := &fakeRemote{byAddr: map[string]*hybrid.Outcome{
		nodeAddr(0): {Results: []hybrid.Result{{ID: "doc-1", Score: 0.9}}, Total: 12},
		nodeAddr(1): {Results: []hybrid.Result{{ID: "doc-2", Score: 0.8}}, Total: 7},
	}}
	merger := federation.NewResultMerger(federation.StrategySimple)
	c := New(r, remote, nil, merger)

	merged, err := c.Search(context.Background(), "docs", collection.SearchRequest{Limit: 10}, "", federation.Options{})
	require.NoError(t, err)
	assert.False(t, merged.Partial)
	assert.Len(t, merged.Results, 2)
	assert.Equal(t, 19, merged.Total)
}

func TestCoordinator_Search_ShardErrorMarksPartial(t *testing.T) {
	cluster := clusterWithShards(t, 2, 2)
	r := router.New(cluster)

	remote := &fakeRemote{
		byAddr: map[string]*hybrid.Outcome{nodeAddr(0): {Results: []hybrid.Result{{ID: "doc-1", Score: 0.9}}}},
		errs:   map[string]error{nodeAddr(1): errors.New("unreachable")},
	}
	merger := federation.NewResultMerger(federation.StrategySimple)
	c := New(r, remote, nil, merger)

	merged, err := c.Search(context.Background(), "docs", collection.SearchRequest{Limit: 10}, "", federation.Options{})
	require.NoError(t, err)
	assert.True(t, merged.Partial)
	assert.Len(t, merged.Results, 1)
}

func TestCoordinator_Search_NoShardsFallsBackToLocal(t *testing.T) {
	cluster := state.New()
	r := router.New(cluster)

	local := &fakeLocal{outcome: &hybrid.Outcome{Results: []hybrid.Result{{ID: "doc-1", Score: 0.5}}}}
	merger := federation.NewResultMerger(federation.StrategySimple)
	c := New(r, &fakeRemote{}, local, merger)

	merged, err := c.Search(context.Background(), "docs", collection.SearchRequest{Limit: 10}, "", federation.Options{})
	require.NoError(t, err)
	assert.False(t, merged.Partial)
	require.Len(t, merged.Results, 1)
	assert.Equal(t, "doc-1", merged.Results[0].ID)
}

func TestCoordinator_Search_NoShardsNoLocalReturnsEmpty(t *testing.T) {
	cluster := state.New()
	r := router.New(cluster)

	merger := federation.NewResultMerger(federation.StrategySimple)
	c := New(r, &fakeRemote{}, nil, merger)

	merged, err := c.Search(context.Background(), "docs", collection.SearchRequest{Limit: 10}, "", federation.Options{})
	require.NoError(t, err)
	assert.Empty(t, merged.Results)
}

package router

import (
	"fmt"
	"testing"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCluster() *state.Cluster {
	c := state.New()
	for i := 1; i <= 3; i++ {
		c.RegisterNode(placement.NodeInfo{
			NodeID:  fmt.Sprintf("node-%d", i),
			Address: fmt.Sprintf("127.0.0.1:908%d", i-1),
			Healthy: true,
		})
	}
	for i := 0; i < 3; i++ {
		a := placement.NewShardAssignment("products", i, fmt.Sprintf("node-%d", i+1))
		a.State = placement.ShardActive
		c.AssignShard(a)
	}
	return c
}

func TestHashToShard_IsDeterministic(t *testing.T) {
	assert.Equal(t, hashToShard("doc-1", 3), hashToShard("doc-1", 3))

	s1 := hashToShard("doc-1", 10)
	s2 := hashToShard("doc-2", 10)
	assert.Less(t, s1, 10)
	assert.Less(t, s2, 10)
}

func TestRoute_Broadcast(t *testing.T) {
	r := New(setupTestCluster())

	decision := r.Route("products")
	assert.Equal(t, StrategyBroadcast, decision.Strategy)
	assert.Len(t, decision.Targets, 3)
	assert.False(t, decision.Partial)
}

func TestRouteByID_HashesToASingleShard(t *testing.T) {
	r := New(setupTestCluster())

	decision, err := r.RouteByID("products", "doc-123")
	require.NoError(t, err)
	assert.Equal(t, StrategyHash, decision.Strategy)
	assert.NotEmpty(t, decision.Targets)
}

func TestShardCount(t *testing.T) {
	r := New(setupTestCluster())

	assert.Equal(t, 3, r.ShardCount("products"))
	assert.Equal(t, 0, r.ShardCount("nonexistent"))
}

func TestRoute_EmptyCollectionReturnsNoTargets(t *testing.T) {
	r := New(state.New())

	decision := r.Route("products")
	assert.Empty(t, decision.Targets)
	assert.False(t, decision.Partial)
}

func TestRoute_InactiveShardMarksPartial(t *testing.T) {
	c := setupTestCluster()
	a, _ := c.GetShard("products-shard-0")
	a.State = placement.ShardInitializing
	c.AssignShard(a)

	r := New(c)
	decision := r.Route("products")
	assert.Len(t, decision.Targets, 2)
	assert.True(t, decision.Partial)
}

func TestRoute_FallsBackToReplicaWhenPrimaryNodeUnknown(t *testing.T) {
	c := state.New()
	c.RegisterNode(placement.NodeInfo{NodeID: "node-2", Address: "127.0.0.1:9081", Healthy: true})

	a := placement.NewShardAssignment("products", 0, "node-1")
	a.ReplicaNodes = []string{"node-2"}
	a.State = placement.ShardActive
	c.AssignShard(a)

	r := New(c)
	decision := r.Route("products")
	require.Len(t, decision.Targets, 1)
	assert.Equal(t, "127.0.0.1:9081", decision.Targets[0].NodeAddress)
	assert.False(t, decision.Partial)
}

func TestAllShardsAvailable(t *testing.T) {
	r := New(setupTestCluster())
	assert.True(t, r.AllShardsAvailable("products"))
	assert.True(t, r.AllShardsAvailable("nonexistent"))
}

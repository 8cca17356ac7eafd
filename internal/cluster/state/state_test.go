package state

import (
	"testing"
	"time"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeNodeInfo(id, zone string) placement.NodeInfo {
	return placement.NodeInfo{
		NodeID:         id,
		Address:        id + ":9080",
		Topology:       placement.Topology{Zone: zone, Attributes: map[string]string{}},
		Healthy:        true,
		DiskTotalBytes: 100_000_000_000,
	}
}

func TestCluster_NodeRegistration(t *testing.T) {
	c := New()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	c.RegisterNode(makeNodeInfo("node-2", "zone-b"))

	assert.Equal(t, 2, c.NodeCount())
	_, ok := c.GetNode("node-1")
	assert.True(t, ok)
	_, ok = c.GetNode("node-3")
	assert.False(t, ok)
}

func TestCluster_ShardAssignment(t *testing.T) {
	c := New()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))

	a := placement.NewShardAssignment("test", 0, "node-1")
	a.ReplicaNodes = []string{"node-2"}
	c.AssignShard(a)

	got, ok := c.GetShard(a.ShardID)
	require.True(t, ok)
	assert.Equal(t, "test", got.Collection)
}

func TestCluster_NodeShards(t *testing.T) {
	c := New()
	c.AssignShard(placement.NewShardAssignment("test", 0, "node-1"))
	c.AssignShard(placement.NewShardAssignment("test", 1, "node-1"))
	c.AssignShard(placement.NewShardAssignment("test", 2, "node-2"))

	assert.Len(t, c.NodeShards("node-1"), 2)
	assert.Len(t, c.NodeShards("node-2"), 1)
}

func TestCluster_ImbalanceCalculation(t *testing.T) {
	c := New()
	for i := 0; i < 4; i++ {
		c.AssignShard(placement.NewShardAssignment("test", i, "node-1"))
	}
	c.AssignShard(placement.NewShardAssignment("test", 4, "node-2"))

	min, max, imbalance := c.Imbalance()
	assert.Equal(t, 1, min)
	assert.Equal(t, 4, max)
	assert.Greater(t, imbalance, 100.0)
}

func TestCluster_SnapshotRestore(t *testing.T) {
	c := New()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	c.AssignShard(placement.NewShardAssignment("test", 0, "node-1"))

	snap := c.Snapshot()

	restored := New()
	restored.Restore(snap)

	assert.Equal(t, 1, restored.NodeCount())
	_, ok := restored.GetShard("test-shard-0")
	assert.True(t, ok)
}

func TestCluster_DrainUndrainNode(t *testing.T) {
	c := NewWithHeartbeatTimeout(time.Hour)
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	c.RegisterNode(makeNodeInfo("node-2", "zone-b"))

	n, _ := c.GetNode("node-1")
	assert.False(t, n.Draining)

	require.True(t, c.DrainNode("node-1"))
	n, _ = c.GetNode("node-1")
	assert.True(t, n.Draining)
	assert.True(t, n.Info.Draining)

	available := c.AvailableNodes()
	require.Len(t, available, 1)
	assert.Equal(t, "node-2", available[0].NodeID)

	healthy := c.HealthyNodes()
	assert.Len(t, healthy, 2)

	require.True(t, c.UndrainNode("node-1"))
	assert.Len(t, c.AvailableNodes(), 2)

	assert.False(t, c.DrainNode("nonexistent"))
}

func TestCluster_UpdateNodeVersion(t *testing.T) {
	c := New()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))

	n, _ := c.GetNode("node-1")
	assert.Equal(t, uint32(0), n.ProtocolVersion)

	c.UpdateNodeVersion("node-1", 2, 1)
	n, _ = c.GetNode("node-1")
	assert.Equal(t, uint32(2), n.ProtocolVersion)
	assert.Equal(t, uint32(1), n.MinSupportedVersion)
}

func TestCluster_HeartbeatMarksUnreachableNodeHealthyAgain(t *testing.T) {
	c := NewWithHeartbeatTimeout(time.Hour)
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	c.MarkUnreachable("node-1")

	assert.Empty(t, c.HealthyNodes())

	require.True(t, c.UpdateHeartbeat("node-1"))
	assert.Len(t, c.HealthyNodes(), 1)
}

func TestCluster_HeartbeatTimeoutExpiresHealth(t *testing.T) {
	c := NewWithHeartbeatTimeout(time.Millisecond)
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	time.Sleep(5 * time.Millisecond)

	assert.Empty(t, c.HealthyNodes())
}

func TestCluster_UnderloadedAndOverloadedNodes(t *testing.T) {
	c := New()
	for i := 0; i < 4; i++ {
		c.AssignShard(placement.NewShardAssignment("test", i, "node-1"))
	}
	c.AssignShard(placement.NewShardAssignment("test", 4, "node-2"))

	assert.Contains(t, c.UnderloadedNodes(), "node-2")
	assert.Contains(t, c.OverloadedNodes(), "node-1")
}

func TestCluster_UpdateShardState(t *testing.T) {
	c := New()
	a := placement.NewShardAssignment("test", 0, "node-1")
	c.AssignShard(a)

	require.True(t, c.UpdateShardState(a.ShardID, placement.ShardActive))
	got, _ := c.GetShard(a.ShardID)
	assert.Equal(t, placement.ShardActive, got.State)

	assert.False(t, c.UpdateShardState("missing-shard", placement.ShardActive))
}

func TestCluster_EpochMonotonicAcrossWrites(t *testing.T) {
	c := New()
	assert.Equal(t, uint64(0), c.Epoch())

	prev := c.Epoch()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	a := placement.NewShardAssignment("test", 0, "node-1")
	c.AssignShard(a)
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	require.True(t, c.UpdateShardState(a.ShardID, placement.ShardActive))
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	c.MarkUnreachable("node-1")
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	require.True(t, c.DrainNode("node-1"))
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	require.True(t, c.UpdateNodeVersion("node-1", 2, 1))
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	_, ok := c.RemoveShard(a.ShardID)
	require.True(t, ok)
	assert.Greater(t, c.Epoch(), prev)

	prev = c.Epoch()
	_, ok = c.RemoveNode("node-1")
	require.True(t, ok)
	assert.Greater(t, c.Epoch(), prev)

	// Every mutation above must have produced a unique, strictly
	// increasing epoch value, not just a final epoch greater than the
	// first.
	assert.Equal(t, uint64(8), c.Epoch())
}

func TestCluster_EpochUnaffectedByReadsAndHeartbeat(t *testing.T) {
	c := New()
	c.RegisterNode(makeNodeInfo("node-1", "zone-a"))
	epoch := c.Epoch()

	_, _ = c.GetNode("node-1")
	_ = c.Nodes()
	_ = c.HealthyNodes()
	_ = c.AvailableNodes()
	c.UpdateHeartbeat("node-1")

	assert.Equal(t, epoch, c.Epoch())
}

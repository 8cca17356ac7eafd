package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/state"
)

func TestClusterStore_LoadBeforeSaveReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewClusterStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClusterStore_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewClusterStore(dir)
	require.NoError(t, err)

	cluster := state.New()
	cluster.RegisterNode(placement.NodeInfo{
		NodeID:   "node-a",
		Address:  "10.0.0.1:9080",
		Topology: placement.Topology{Zone: "us-east-1a"},
	})
	cluster.AssignShard(placement.ShardAssignment{ShardID: "shard-0", Collection: "docs", PrimaryNode: "node-a"})

	require.NoError(t, store.Save(cluster.Snapshot()))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.Nodes, 1)
	assert.Len(t, loaded.Assignments, 1)
}

func TestClusterStore_RestoreIntoAppliesSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewClusterStore(dir)
	require.NoError(t, err)

	original := state.New()
	original.RegisterNode(placement.NodeInfo{
		NodeID:   "node-a",
		Address:  "10.0.0.1:9080",
		Topology: placement.Topology{Zone: "us-east-1a"},
	})
	require.NoError(t, store.Save(original.Snapshot()))

	restored := state.New()
	require.NoError(t, store.RestoreInto(restored))
	assert.Equal(t, 1, restored.NodeCount())
}

func TestClusterStore_SaveOverwritesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewClusterStore(dir)
	require.NoError(t, err)

	first := state.New()
	first.RegisterNode(placement.NodeInfo{
		NodeID:   "node-a",
		Address:  "10.0.0.1:9080",
		Topology: placement.Topology{Zone: "us-east-1a"},
	})
	require.NoError(t, store.Save(first.Snapshot()))

	second := state.New()
	second.RegisterNode(placement.NodeInfo{
		NodeID:   "node-a",
		Address:  "10.0.0.1:9080",
		Topology: placement.Topology{Zone: "us-east-1a"},
	})
	second.RegisterNode(placement.NodeInfo{
		NodeID:   "node-b",
		Address:  "10.0.0.2:9080",
		Topology: placement.Topology{Zone: "us-east-1b"},
	})
	require.NoError(t, store.Save(second.Snapshot()))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.Nodes, 2)

	// only one snapshot file should ever exist, no leftover temp file.
	entries, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

package schema

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.NodeTimeout)
	assert.Equal(t, 10, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.False(t, cfg.RequireAllNodes)
	assert.Equal(t, 1, cfg.MinAcknowledgements)
}

func TestStatus_MarkComplete(t *testing.T) {
	st := Status{Collection: "products", Version: Version(1), StartedAt: time.Now()}
	st.Complete = true
	st.Success = true
	st.CompletedAt = time.Now()

	assert.True(t, st.Complete)
	assert.True(t, st.Success)
	assert.False(t, st.CompletedAt.Before(st.StartedAt))
}

func clusterWithNodes(self string, others ...string) *state.Cluster {
	c := state.New()
	c.RegisterNode(placement.NodeInfo{NodeID: self, Address: self + ":7000", Healthy: true})
	for _, id := range others {
		c.RegisterNode(placement.NodeInfo{NodeID: id, Address: id + ":7000", Healthy: true})
	}
	return c
}

func alwaysSucceeds() (Publisher, *int32) {
	var calls int32
	return func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, &calls
}

func TestPropagate_AllNodesSucceed(t *testing.T) {
	cluster := clusterWithNodes("node-1", "node-2", "node-3")
	publish, calls := alwaysSucceeds()

	p := NewPropagator(publish, cluster, "node-1", DefaultConfig())
	versioned := NewVersionedSchema("products", Version(1), map[string]any{"name": "products"}, "node-1")

	result := p.Propagate(context.Background(), versioned)

	assert.True(t, result.Success)
	assert.ElementsMatch(t, []string{"node-1", "node-2", "node-3"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestPropagate_NoOtherNodes(t *testing.T) {
	cluster := clusterWithNodes("node-1")
	publish, calls := alwaysSucceeds()

	p := NewPropagator(publish, cluster, "node-1", DefaultConfig())
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	result := p.Propagate(context.Background(), versioned)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"node-1"}, result.Succeeded)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func failingFor(failNodes map[string]bool) Publisher {
	return func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error {
		if failNodes[nodeID] {
			return fmt.Errorf("unreachable: %s", nodeID)
		}
		return nil
	}
}

func TestPropagate_PartialFailureMeetingMinAcknowledgements(t *testing.T) {
	cluster := clusterWithNodes("node-1", "node-2", "node-3")
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.MinAcknowledgements = 1

	publish := failingFor(map[string]bool{"node-2": true, "node-3": true})
	p := NewPropagator(publish, cluster, "node-1", cfg)
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	result := p.Propagate(context.Background(), versioned)

	assert.True(t, result.Success)
	assert.Contains(t, result.Succeeded, "node-1")
	assert.ElementsMatch(t, []string{"node-2", "node-3"}, result.Failed)
}

func TestPropagate_RequireAllNodesFailsOnAnyFailure(t *testing.T) {
	cluster := clusterWithNodes("node-1", "node-2", "node-3")
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.RequireAllNodes = true

	publish := failingFor(map[string]bool{"node-3": true})
	p := NewPropagator(publish, cluster, "node-1", cfg)
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	result := p.Propagate(context.Background(), versioned)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestPropagateWithStrategy_ManualSkipsNetwork(t *testing.T) {
	cluster := clusterWithNodes("node-1", "node-2")
	publish, calls := alwaysSucceeds()

	p := NewPropagator(publish, cluster, "node-1", DefaultConfig())
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	result := p.PropagateWithStrategy(context.Background(), versioned, PropagationManual)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"node-1"}, result.Succeeded)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestPropagateWithStrategy_ImmediateAndVersionedBothPropagate(t *testing.T) {
	cluster := clusterWithNodes("node-1", "node-2")
	publish, calls := alwaysSucceeds()

	p := NewPropagator(publish, cluster, "node-1", DefaultConfig())
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	p.PropagateWithStrategy(context.Background(), versioned, PropagationImmediate)
	p.PropagateWithStrategy(context.Background(), versioned, PropagationVersioned)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestPropagateToNode_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	publish := Publisher(func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return fmt.Errorf("transient failure")
		}
		return nil
	})

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	err := propagateToNode(context.Background(), publish, "node-2", "node-2:7000", versioned, cfg)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(attempts))
}

func TestPropagateToNode_RetriesExhausted(t *testing.T) {
	publish := Publisher(func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error {
		return fmt.Errorf("permanent failure")
	})

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	versioned := NewVersionedSchema("products", Version(1), map[string]any{}, "node-1")

	err := propagateToNode(context.Background(), publish, "node-2", "node-2:7000", versioned, cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "node-2")
}

func TestSyncWithNode_CountsSuccessfulPushes(t *testing.T) {
	registry := NewRegistry("node-1")
	registry.Register("products", map[string]any{"name": "products"})
	registry.Register("orders", map[string]any{"name": "orders"})

	var mu sync.Mutex
	failed := map[string]bool{"orders": true}
	publish := Publisher(func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error {
		mu.Lock()
		defer mu.Unlock()
		if failed[versioned.Collection] {
			return fmt.Errorf("rejected")
		}
		return nil
	})

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	p := NewPropagator(publish, state.New(), "node-1", cfg)

	synced := p.SyncWithNode(context.Background(), registry, "node-2", "node-2:7000")
	assert.Equal(t, 1, synced)
}

// Package state tracks cluster-wide node membership and shard assignments:
// the in-memory view the placement engine, query router, and federation
// merger all read from. It is the Go-native counterpart of the cluster's
// original epoch-versioned, heartbeat-based state tracker.
package state

import (
	"sync"
	"time"

	"github.com/prism-db/prism/internal/cluster/placement"
)

// DefaultHeartbeatTimeout is how long a node may go without a heartbeat
// before it is considered unhealthy.
const DefaultHeartbeatTimeout = 30 * time.Second

// NodeState is what the cluster state layer tracks about one node on top
// of its placement.NodeInfo: liveness, version, and drain status.
type NodeState struct {
	Info                placement.NodeInfo
	LastHeartbeat       time.Time
	Reachable           bool
	Version             string
	ProtocolVersion     uint32
	MinSupportedVersion uint32
	Draining            bool
}

func newNodeState(info placement.NodeInfo) NodeState {
	return NodeState{Info: info, Reachable: true, LastHeartbeat: time.Now()}
}

// IsHealthy reports whether the node is reachable and has heartbeated
// within timeout.
func (n NodeState) IsHealthy(timeout time.Duration) bool {
	if !n.Reachable {
		return false
	}
	return time.Since(n.LastHeartbeat) < timeout
}

// Cluster holds the authoritative in-memory view of node membership and
// shard placement for one prism cluster. All reads and writes are
// serialized through an RWMutex; callers never see a torn map.
type Cluster struct {
	mu sync.RWMutex

	nodes            map[string]NodeState
	assignments      map[string]placement.ShardAssignment
	epoch            uint64
	heartbeatTimeout time.Duration
}

// New returns an empty cluster state using DefaultHeartbeatTimeout.
func New() *Cluster {
	return NewWithHeartbeatTimeout(DefaultHeartbeatTimeout)
}

// NewWithHeartbeatTimeout returns an empty cluster state with a custom
// heartbeat timeout, for tests or deployments that need tighter or looser
// failure detection.
func NewWithHeartbeatTimeout(timeout time.Duration) *Cluster {
	return &Cluster{
		nodes:            make(map[string]NodeState),
		assignments:      make(map[string]placement.ShardAssignment),
		heartbeatTimeout: timeout,
	}
}

// Epoch returns the current state epoch.
func (c *Cluster) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// NextEpoch increments and returns the new epoch directly. Every mutator on
// Cluster already bumps the epoch itself; this is for a caller that changes
// cluster-visible state through some other path (e.g. applying a remote
// snapshot diff) and needs readers to see it as a new epoch too.
func (c *Cluster) NextEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	return c.epoch
}

// RegisterNode adds or replaces a node, marking it reachable with a fresh
// heartbeat.
func (c *Cluster) RegisterNode(info placement.NodeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[info.NodeID] = newNodeState(info)
	c.epoch++
}

// UpdateHeartbeat refreshes a node's last-seen time and marks it reachable.
// Reports false if the node is not registered.
func (c *Cluster) UpdateHeartbeat(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return false
	}
	n.LastHeartbeat = time.Now()
	n.Reachable = true
	c.nodes[nodeID] = n
	return true
}

// MarkUnreachable flags a node unreachable without removing it, so it keeps
// contributing to shard-count accounting until explicitly removed.
func (c *Cluster) MarkUnreachable(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return
	}
	n.Reachable = false
	c.nodes[nodeID] = n
	c.epoch++
}

// RemoveNode deletes a node from the cluster, returning its last known
// state if present.
func (c *Cluster) RemoveNode(nodeID string) (NodeState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if ok {
		delete(c.nodes, nodeID)
		c.epoch++
	}
	return n, ok
}

// GetNode returns a node's state by id.
func (c *Cluster) GetNode(nodeID string) (NodeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[nodeID]
	return n, ok
}

// Nodes returns every known node, healthy or not.
func (c *Cluster) Nodes() []NodeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeState, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

// HealthyNodes returns the placement.NodeInfo of every node whose
// heartbeat is within timeout, draining or not.
func (c *Cluster) HealthyNodes() []placement.NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]placement.NodeInfo, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.IsHealthy(c.heartbeatTimeout) {
			out = append(out, n.Info)
		}
	}
	return out
}

// AvailableNodes returns the placement.NodeInfo of every node that is both
// healthy and not draining — the set the query router and placement engine
// should actually route to or place onto.
func (c *Cluster) AvailableNodes() []placement.NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]placement.NodeInfo, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.IsHealthy(c.heartbeatTimeout) && !n.Draining {
			out = append(out, n.Info)
		}
	}
	return out
}

// DrainNode stops new queries from routing to nodeID without evicting its
// shards; used ahead of a planned maintenance or decommission. Reports
// false if the node is not registered.
func (c *Cluster) DrainNode(nodeID string) bool {
	return c.setDraining(nodeID, true)
}

// UndrainNode resumes routing to a previously drained node.
func (c *Cluster) UndrainNode(nodeID string) bool {
	return c.setDraining(nodeID, false)
}

func (c *Cluster) setDraining(nodeID string, draining bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return false
	}
	n.Draining = draining
	n.Info.Draining = draining
	c.nodes[nodeID] = n
	c.epoch++
	return true
}

// UpdateNodeVersion records the protocol version a node speaks and the
// oldest protocol version it still accepts. Reports false if the node is
// not registered.
func (c *Cluster) UpdateNodeVersion(nodeID string, protocolVersion, minSupported uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return false
	}
	n.ProtocolVersion = protocolVersion
	n.MinSupportedVersion = minSupported
	c.nodes[nodeID] = n
	c.epoch++
	return true
}

// NodeCount returns the total number of registered nodes.
func (c *Cluster) NodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// HealthyNodeCount returns the number of registered nodes currently healthy.
func (c *Cluster) HealthyNodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, n := range c.nodes {
		if n.IsHealthy(c.heartbeatTimeout) {
			count++
		}
	}
	return count
}

// AssignShard records or replaces a shard assignment.
func (c *Cluster) AssignShard(assignment placement.ShardAssignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignments[assignment.ShardID] = assignment
	c.epoch++
}

// RemoveShard deletes a shard assignment, returning it if present.
func (c *Cluster) RemoveShard(shardID string) (placement.ShardAssignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assignments[shardID]
	if ok {
		delete(c.assignments, shardID)
		c.epoch++
	}
	return a, ok
}

// GetShard returns a shard assignment by id.
func (c *Cluster) GetShard(shardID string) (placement.ShardAssignment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assignments[shardID]
	return a, ok
}

// AllShards returns every known shard assignment.
func (c *Cluster) AllShards() []placement.ShardAssignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]placement.ShardAssignment, 0, len(c.assignments))
	for _, a := range c.assignments {
		out = append(out, a)
	}
	return out
}

// CollectionShards returns every shard assignment belonging to collection.
func (c *Cluster) CollectionShards(collection string) []placement.ShardAssignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]placement.ShardAssignment, 0)
	for _, a := range c.assignments {
		if a.Collection == collection {
			out = append(out, a)
		}
	}
	return out
}

// NodeShards returns every shard assignment holding a copy on nodeID.
func (c *Cluster) NodeShards(nodeID string) []placement.ShardAssignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]placement.ShardAssignment, 0)
	for _, a := range c.assignments {
		if a.IsOnNode(nodeID) {
			out = append(out, a)
		}
	}
	return out
}

// UpdateShardState transitions a shard's lifecycle state. Reports false if
// the shard is not known.
func (c *Cluster) UpdateShardState(shardID string, newState placement.ShardState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assignments[shardID]
	if !ok {
		return false
	}
	a.State = newState
	c.assignments[shardID] = a
	c.epoch++
	return true
}

// ShardCountsByNode counts every shard copy (primary and replica) held by
// each node.
func (c *Cluster) ShardCountsByNode() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range c.assignments {
		counts[a.PrimaryNode]++
		for _, r := range a.ReplicaNodes {
			counts[r]++
		}
	}
	return counts
}

// Imbalance returns the minimum and maximum per-node shard counts and the
// imbalance as a percentage of the mean ((max-min)/avg * 100). Returns all
// zeros when no shards are assigned.
func (c *Cluster) Imbalance() (min, max int, imbalancePercent float64) {
	counts := c.ShardCountsByNode()
	if len(counts) == 0 {
		return 0, 0, 0
	}

	first := true
	total := 0
	for _, v := range counts {
		if first {
			min, max = v, v
			first = false
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		total += v
	}
	if max == 0 {
		return 0, 0, 0
	}

	avg := float64(total) / float64(len(counts))
	return min, max, (float64(max-min) / avg) * 100
}

// IsImbalanced reports whether the cluster's shard distribution exceeds
// thresholdPercent imbalance.
func (c *Cluster) IsImbalanced(thresholdPercent float64) bool {
	_, _, imbalance := c.Imbalance()
	return imbalance > thresholdPercent
}

// UnderloadedNodes returns nodes with fewer than 80% of the mean shard
// count — rebalance candidates to receive shards.
func (c *Cluster) UnderloadedNodes() []string {
	return c.nodesByLoadRatio(func(ratio float64) bool { return ratio < 0.8 })
}

// OverloadedNodes returns nodes with more than 120% of the mean shard
// count — rebalance candidates to shed shards.
func (c *Cluster) OverloadedNodes() []string {
	return c.nodesByLoadRatio(func(ratio float64) bool { return ratio > 1.2 })
}

func (c *Cluster) nodesByLoadRatio(match func(ratio float64) bool) []string {
	counts := c.ShardCountsByNode()
	if len(counts) == 0 {
		return nil
	}
	total := 0
	for _, v := range counts {
		total += v
	}
	avg := float64(total) / float64(len(counts))

	out := make([]string, 0)
	for node, count := range counts {
		if match(float64(count) / avg) {
			out = append(out, node)
		}
	}
	return out
}

// Snapshot is a serializable copy of cluster state, used for persistence
// and for seeding a freshly started node from a peer.
type Snapshot struct {
	Epoch       uint64
	Nodes       map[string]NodeState
	Assignments map[string]placement.ShardAssignment
}

// Snapshot exports the current state.
func (c *Cluster) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nodes := make(map[string]NodeState, len(c.nodes))
	for k, v := range c.nodes {
		nodes[k] = v
	}
	assignments := make(map[string]placement.ShardAssignment, len(c.assignments))
	for k, v := range c.assignments {
		assignments[k] = v
	}
	return Snapshot{Epoch: c.epoch, Nodes: nodes, Assignments: assignments}
}

// Restore replaces the current state with snap wholesale.
func (c *Cluster) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = snap.Epoch
	c.nodes = make(map[string]NodeState, len(snap.Nodes))
	for k, v := range snap.Nodes {
		c.nodes[k] = v
	}
	c.assignments = make(map[string]placement.ShardAssignment, len(snap.Assignments))
	for k, v := range snap.Assignments {
		c.assignments[k] = v
	}
}

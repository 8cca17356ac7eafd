// Package placement selects zone/rack/region-aware replica sets for a
// shard: a hard filter over healthy, attribute-eligible nodes followed by
// a soft-balance scoring pass, the same two-phase shape the cluster's
// original placement algorithm used.
package placement

import "fmt"

// SpreadLevel names the failure domain replicas must be distinct across.
type SpreadLevel string

const (
	SpreadNone   SpreadLevel = "none"
	SpreadZone   SpreadLevel = "zone"
	SpreadRack   SpreadLevel = "rack"
	SpreadRegion SpreadLevel = "region"
)

// BalanceFactor names one soft-balance scoring term.
type BalanceFactor string

const (
	BalanceShardCount BalanceFactor = "shard_count"
	BalanceDiskUsage  BalanceFactor = "disk_usage"
	BalanceIndexSize  BalanceFactor = "index_size"
	BalancePreferSSD  BalanceFactor = "prefer_ssd"
)

// Topology describes a node's placement domain membership.
type Topology struct {
	Zone       string
	Rack       string
	Region     string
	Attributes map[string]string
	HasSSD     bool
}

// NodeInfo is a placement candidate: the subset of cluster state the
// algorithm needs to filter and score.
type NodeInfo struct {
	NodeID           string
	Address          string
	Topology         Topology
	Healthy          bool
	ShardCount       int
	DiskUsedBytes    int64
	DiskTotalBytes   int64
	IndexSizeBytes   int64
}

// DiskUsagePercent returns 0-100 disk utilization, 0 when total is unknown.
func (n NodeInfo) DiskUsagePercent() float64 {
	if n.DiskTotalBytes <= 0 {
		return 0
	}
	return float64(n.DiskUsedBytes) / float64(n.DiskTotalBytes) * 100
}

// ShardState is the lifecycle state of one shard assignment.
type ShardState string

const (
	ShardInitializing ShardState = "initializing"
	ShardActive       ShardState = "active"
	ShardRelocating   ShardState = "relocating"
	ShardSyncing      ShardState = "syncing"
	ShardDeleting     ShardState = "deleting"
	ShardError        ShardState = "error"
)

// CanServeReads reports whether a shard in this state may answer queries.
func (s ShardState) CanServeReads() bool {
	return s == ShardActive || s == ShardRelocating
}

// CanServeWrites reports whether a shard in this state may accept writes.
func (s ShardState) CanServeWrites() bool {
	return s == ShardActive
}

// ShardAssignment is the subset of cluster state placement needs to count
// existing load per node, plus the lifecycle bookkeeping the cluster state
// layer tracks on top of it.
type ShardAssignment struct {
	ShardID       string
	Collection    string
	ShardNumber   int
	PrimaryNode   string
	ReplicaNodes  []string
	State         ShardState
	SizeBytes     int64
	DocumentCount int64
	Epoch         uint64
}

// NewShardAssignment creates a freshly initializing shard assignment with a
// deterministic shard id derived from the collection and shard number.
func NewShardAssignment(collection string, shardNumber int, primaryNode string) ShardAssignment {
	return ShardAssignment{
		ShardID:     fmt.Sprintf("%s-shard-%d", collection, shardNumber),
		Collection:  collection,
		ShardNumber: shardNumber,
		PrimaryNode: primaryNode,
		State:       ShardInitializing,
		Epoch:       1,
	}
}

// ReplicaCount is the total number of copies (primary + replicas).
func (a ShardAssignment) ReplicaCount() int {
	return 1 + len(a.ReplicaNodes)
}

// IsOnNode reports whether nodeID holds any copy (primary or replica) of
// this shard.
func (a ShardAssignment) IsOnNode(nodeID string) bool {
	if a.PrimaryNode == nodeID {
		return true
	}
	for _, r := range a.ReplicaNodes {
		if r == nodeID {
			return true
		}
	}
	return false
}

// AllNodes returns every node holding a copy of this shard.
func (a ShardAssignment) AllNodes() []string {
	return append([]string{a.PrimaryNode}, a.ReplicaNodes...)
}

// Strategy configures one placement decision.
type Strategy struct {
	SpreadAcross         SpreadLevel
	BalanceBy            []BalanceFactor
	RequiredAttributes   map[string]string
	PreferredAttributes  map[string]string
}

// DefaultStrategy spreads across zones and balances by shard count, the
// conventional default for a freshly created collection.
func DefaultStrategy() Strategy {
	return Strategy{
		SpreadAcross: SpreadZone,
		BalanceBy:    []BalanceFactor{BalanceShardCount},
	}
}

// Decision is the outcome of a successful placement.
type Decision struct {
	ShardID      string
	PrimaryNode  string
	ReplicaNodes []string
	Score        float64
	Reason       string
}

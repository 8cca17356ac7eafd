// Package router decides which shards a query or a document operation
// should reach: broadcast to every active shard for a search, or a single
// hashed shard (primary plus replicas, for failover) for an id-keyed
// get/index/delete.
package router

import (
	"fmt"
	"hash/fnv"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/state"
)

// Strategy names how a routing decision chose its targets.
type Strategy string

const (
	StrategyBroadcast Strategy = "broadcast"
	StrategyHash      Strategy = "hash"
)

// Target is one shard a query or operation should be sent to.
type Target struct {
	ShardID     string
	Collection  string
	ShardNumber int
	NodeAddress string
	Replicas    []string
}

func targetFromAssignment(a placement.ShardAssignment, nodeAddress string) Target {
	return Target{
		ShardID:     a.ShardID,
		Collection:  a.Collection,
		ShardNumber: a.ShardNumber,
		NodeAddress: nodeAddress,
		Replicas:    a.ReplicaNodes,
	}
}

// Decision is the outcome of a routing call.
type Decision struct {
	Targets  []Target
	Strategy Strategy
	// Partial is true when one or more of the collection's shards could
	// not be routed to (not serving reads, or its node is unknown).
	Partial bool
}

// Router routes queries and id-keyed operations against a live Cluster.
type Router struct {
	cluster *state.Cluster
}

// New returns a Router reading shard and node placement from cluster.
func New(cluster *state.Cluster) *Router {
	return &Router{cluster: cluster}
}

// Route returns every read-serving shard of collection, broadcasting to
// all of them. A shard whose primary node is unknown falls back to its
// first replica with a known node; if neither is reachable the shard is
// dropped and the decision is marked Partial. An empty shard list (e.g. a
// single-node deployment with no explicit shard assignments) returns a
// decision with no targets and Partial false — the caller is expected to
// fall back to local execution.
func (r *Router) Route(collection string) Decision {
	shards := r.cluster.CollectionShards(collection)
	if len(shards) == 0 {
		return Decision{Strategy: StrategyBroadcast}
	}

	targets := make([]Target, 0, len(shards))
	partial := false

	for _, shard := range shards {
		if !shard.State.CanServeReads() {
			partial = true
			continue
		}

		if node, ok := r.cluster.GetNode(shard.PrimaryNode); ok {
			targets = append(targets, targetFromAssignment(shard, node.Info.Address))
			continue
		}

		found := false
		for _, replica := range shard.ReplicaNodes {
			if node, ok := r.cluster.GetNode(replica); ok {
				targets = append(targets, targetFromAssignment(shard, node.Info.Address))
				found = true
				break
			}
		}
		if !found {
			partial = true
		}
	}

	return Decision{Targets: targets, Strategy: StrategyBroadcast, Partial: partial}
}

// RouteByID hash-routes an id-keyed get/index/delete to exactly one shard
// of collection, returning that shard's primary and every reachable
// replica as failover targets. Returns an error if the collection has
// shards but the hashed shard number has no assignment — a topology
// inconsistency the caller should treat as a bug, not a retryable miss.
func (r *Router) RouteByID(collection, id string) (Decision, error) {
	return r.routeByKey(collection, id)
}

// RouteByKey hash-routes using an explicit routing key instead of the
// document id — the same algorithm, for collections that route by a
// field other than id.
func (r *Router) RouteByKey(collection, routingKey string) (Decision, error) {
	return r.routeByKey(collection, routingKey)
}

func (r *Router) routeByKey(collection, key string) (Decision, error) {
	shards := r.cluster.CollectionShards(collection)
	if len(shards) == 0 {
		return Decision{Strategy: StrategyHash}, nil
	}

	shardIndex := hashToShard(key, len(shards))

	var target *placement.ShardAssignment
	for i := range shards {
		if shards[i].ShardNumber == shardIndex {
			target = &shards[i]
			break
		}
	}
	if target == nil {
		return Decision{}, fmt.Errorf("shard %d not found for collection %q", shardIndex, collection)
	}

	targets := make([]Target, 0, 1+len(target.ReplicaNodes))
	if node, ok := r.cluster.GetNode(target.PrimaryNode); ok {
		targets = append(targets, targetFromAssignment(*target, node.Info.Address))
	}
	for _, replica := range target.ReplicaNodes {
		if node, ok := r.cluster.GetNode(replica); ok {
			targets = append(targets, targetFromAssignment(*target, node.Info.Address))
		}
	}

	return Decision{Targets: targets, Strategy: StrategyHash}, nil
}

// hashToShard maps key onto [0, shardCount) via FNV-1a, the same stable
// hash the sharded vector index uses to route documents — kept consistent
// so a collection's text/vector shard routing and its id-keyed RPC routing
// agree on which shard number owns a given document id.
func hashToShard(key string, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(shardCount))
}

// ShardCount returns the number of shards assigned to collection.
func (r *Router) ShardCount(collection string) int {
	return len(r.cluster.CollectionShards(collection))
}

// AllShardsAvailable reports whether every shard of collection can serve
// reads and has a reachable primary node.
func (r *Router) AllShardsAvailable(collection string) bool {
	for _, shard := range r.cluster.CollectionShards(collection) {
		if !shard.State.CanServeReads() {
			return false
		}
		if _, ok := r.cluster.GetNode(shard.PrimaryNode); !ok {
			return false
		}
	}
	return true
}

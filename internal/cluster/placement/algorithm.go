package placement

import (
	"fmt"
	"sort"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

// PlaceReplicas selects a primary and replication_factor-1 replicas for
// shardID. Phase 1 hard-filters unhealthy nodes and nodes failing required
// attributes, then checks spread feasibility; phase 2 scores the survivors
// by soft-balance and greedily fills one node per domain before topping
// off with the next best-scored nodes regardless of domain.
func PlaceReplicas(shardID string, replicationFactor int, nodes []NodeInfo, existing []ShardAssignment, strategy Strategy) (*Decision, error) {
	if replicationFactor <= 0 {
		return nil, prismerrors.PlacementInsufficientNodes(len(nodes), 1)
	}

	eligible, err := filterByHardConstraints(nodes, strategy)
	if err != nil {
		return nil, err
	}

	if len(eligible) < replicationFactor {
		return nil, prismerrors.PlacementInsufficientNodes(len(eligible), replicationFactor)
	}

	if err := validateSpreadConstraint(eligible, replicationFactor, strategy); err != nil {
		return nil, err
	}

	selected, err := selectNodesWithSpread(eligible, replicationFactor, existing, strategy)
	if err != nil {
		return nil, err
	}

	return &Decision{
		ShardID:      shardID,
		PrimaryNode:  selected[0],
		ReplicaNodes: selected[1:],
		Score:        1.0,
		Reason:       fmt.Sprintf("placed with %s spread across %d nodes", strategy.SpreadAcross, replicationFactor),
	}, nil
}

func filterByHardConstraints(nodes []NodeInfo, strategy Strategy) ([]NodeInfo, error) {
	eligible := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		if !n.Healthy {
			continue
		}
		if !hasRequiredAttributes(n, strategy.RequiredAttributes) {
			continue
		}
		eligible = append(eligible, n)
	}
	if len(eligible) == 0 {
		return nil, prismerrors.PlacementNoHealthyNodes()
	}
	return eligible, nil
}

func hasRequiredAttributes(n NodeInfo, required map[string]string) bool {
	for k, v := range required {
		if n.Topology.Attributes[k] != v {
			return false
		}
	}
	return true
}

// validateSpreadConstraint checks that enough distinct domains exist
// before scoring even begins. Rack and Region gracefully skip the check
// when no eligible node reports that attribute at all (the collection may
// simply run in a single-rack deployment).
func validateSpreadConstraint(nodes []NodeInfo, replicationFactor int, strategy Strategy) error {
	switch strategy.SpreadAcross {
	case SpreadZone:
		domains := distinctDomains(nodes, SpreadZone)
		if len(domains) < replicationFactor {
			return prismerrors.PlacementInsufficientZones(len(domains), replicationFactor)
		}
	case SpreadRack:
		domains := distinctNonEmptyDomains(nodes, func(n NodeInfo) string { return n.Topology.Rack })
		if len(domains) > 0 && len(domains) < replicationFactor {
			return prismerrors.PlacementInsufficientRacks(len(domains), replicationFactor)
		}
	case SpreadRegion:
		domains := distinctNonEmptyDomains(nodes, func(n NodeInfo) string { return n.Topology.Region })
		if len(domains) > 0 && len(domains) < replicationFactor {
			// The abstract error taxonomy has no InsufficientRegions code;
			// region spread reuses the zone-insufficiency code, matching
			// the cluster's original placement algorithm.
			return prismerrors.PlacementInsufficientZones(len(domains), replicationFactor)
		}
	case SpreadNone:
	}
	return nil
}

func distinctDomains(nodes []NodeInfo, level SpreadLevel) map[string]struct{} {
	domains := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		domains[nodeDomain(n, level)] = struct{}{}
	}
	return domains
}

func distinctNonEmptyDomains(nodes []NodeInfo, get func(NodeInfo) string) map[string]struct{} {
	domains := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if v := get(n); v != "" {
			domains[v] = struct{}{}
		}
	}
	return domains
}

func nodeDomain(n NodeInfo, level SpreadLevel) string {
	switch level {
	case SpreadZone:
		return n.Topology.Zone
	case SpreadRack:
		if n.Topology.Rack != "" {
			return n.Topology.Rack
		}
		return n.Topology.Zone
	case SpreadRegion:
		if n.Topology.Region != "" {
			return n.Topology.Region
		}
		return n.Topology.Zone
	default:
		return "default"
	}
}

func selectNodesWithSpread(nodes []NodeInfo, replicationFactor int, existing []ShardAssignment, strategy Strategy) ([]string, error) {
	type scored struct {
		node  NodeInfo
		score float64
	}
	ranked := make([]scored, len(nodes))
	for i, n := range nodes {
		ranked[i] = scored{node: n, score: ScoreNode(n, existing, strategy)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	selected := make([]string, 0, replicationFactor)
	usedDomains := make(map[string]struct{})
	selectedSet := make(map[string]struct{})

	if strategy.SpreadAcross != SpreadNone {
		for _, r := range ranked {
			domain := nodeDomain(r.node, strategy.SpreadAcross)
			if _, used := usedDomains[domain]; used {
				continue
			}
			selected = append(selected, r.node.NodeID)
			selectedSet[r.node.NodeID] = struct{}{}
			usedDomains[domain] = struct{}{}
			if len(selected) >= replicationFactor {
				break
			}
		}
	}

	if len(selected) < replicationFactor {
		for _, r := range ranked {
			if _, ok := selectedSet[r.node.NodeID]; ok {
				continue
			}
			selected = append(selected, r.node.NodeID)
			selectedSet[r.node.NodeID] = struct{}{}
			if len(selected) >= replicationFactor {
				break
			}
		}
	}

	if len(selected) < replicationFactor {
		return nil, prismerrors.PlacementInsufficientNodes(len(selected), replicationFactor)
	}
	return selected, nil
}

// ScoreNode computes a soft-balance score for n: higher is more
// preferable. Each configured balance factor subtracts (or, for SSD
// preference, adds) a weighted term; preferred attribute matches add a
// flat bonus. The floor is 0.
func ScoreNode(n NodeInfo, existing []ShardAssignment, strategy Strategy) float64 {
	score := 100.0

	for _, factor := range strategy.BalanceBy {
		switch factor {
		case BalanceShardCount:
			score -= float64(countShardsOnNode(n.NodeID, existing)) * 5.0
		case BalanceDiskUsage:
			score -= n.DiskUsagePercent() * 0.5
		case BalanceIndexSize:
			sizeGB := float64(n.IndexSizeBytes) / (1024 * 1024 * 1024)
			score -= sizeGB * 2.0
		case BalancePreferSSD:
			if n.Topology.HasSSD {
				score += 20.0
			}
		}
	}

	for k, v := range strategy.PreferredAttributes {
		if n.Topology.Attributes[k] == v {
			score += 10.0
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func countShardsOnNode(nodeID string, assignments []ShardAssignment) int {
	count := 0
	for _, a := range assignments {
		if a.IsOnNode(nodeID) {
			count++
		}
	}
	return count
}

// FindRebalanceTarget picks the best healthy node (not already holding
// shard) to receive it, preferring candidates that preserve the spread
// constraint over the shard's current node set when any such candidate
// exists.
func FindRebalanceTarget(shard ShardAssignment, nodes []NodeInfo, existing []ShardAssignment, strategy Strategy) (string, error) {
	byID := make(map[string]NodeInfo, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}

	candidates := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		if n.Healthy && !shard.IsOnNode(n.NodeID) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return "", prismerrors.PlacementNoHealthyNodes()
	}

	currentDomains := make(map[string]struct{})
	for _, nodeID := range shard.AllNodes() {
		if n, ok := byID[nodeID]; ok {
			currentDomains[nodeDomain(n, strategy.SpreadAcross)] = struct{}{}
		}
	}

	validCandidates := candidates
	if strategy.SpreadAcross != SpreadNone {
		filtered := make([]NodeInfo, 0, len(candidates))
		for _, n := range candidates {
			if _, used := currentDomains[nodeDomain(n, strategy.SpreadAcross)]; !used {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) > 0 {
			validCandidates = filtered
		}
	}

	best := validCandidates[0]
	bestScore := ScoreNode(best, existing, strategy)
	for _, n := range validCandidates[1:] {
		if s := ScoreNode(n, existing, strategy); s > bestScore {
			best, bestScore = n, s
		}
	}
	return best.NodeID, nil
}

// Package federation merges per-shard search results gathered by the query
// router into one ranked, deduplicated result list. It mirrors the shape of
// the hybrid coordinator's fusion step (internal/hybrid) but operates over
// an arbitrary number of shard result lists rather than exactly a text and
// a vector list, and tolerates partial shard failure: a shard that errored
// or timed out contributes nothing but does not fail the whole merge.
package federation

// Strategy names one cross-shard merge algorithm.
type Strategy string

const (
	StrategySimple          Strategy = "simple"
	StrategyScoreNormalized Strategy = "score_normalized"
	StrategyRRF             Strategy = "rrf"
	StrategyWeighted        Strategy = "weighted"
)

// ParseStrategy maps a config/RPC string onto a Strategy, defaulting to
// Simple for anything unrecognized.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategySimple, StrategyScoreNormalized, StrategyRRF, StrategyWeighted:
		return Strategy(s)
	default:
		return StrategySimple
	}
}

// DefaultRRFK is the RRF rank-damping constant used when a caller does not
// supply one.
const DefaultRRFK = 60

// Hit is one shard's result for a document.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

// ShardResult is one shard's contribution to a federated query: either a
// ranked hit list, or an error if the shard could not be reached in time.
type ShardResult struct {
	ShardID string
	Results []Hit
	// Total is the shard's own match count before dedup or truncation
	// (e.g. hybrid.Outcome.Total), not len(Results).
	Total int
	Err   error
}

// Options configures a merge beyond the strategy name.
type Options struct {
	// RRFK is the rank-damping constant for StrategyRRF; non-positive
	// defaults to DefaultRRFK.
	RRFK int
	// Weights maps ShardID to a multiplier applied to that shard's scores
	// before StrategyWeighted merges them; a shard missing from the map
	// gets weight 1.0.
	Weights map[string]float64
}

// MergedResult is the outcome of merging shard results.
type MergedResult struct {
	Results      []Hit
	Total        int
	StrategyUsed Strategy
	// Partial is true when one or more shards failed or timed out and were
	// excluded from this merge.
	Partial bool
}

// Package hybrid fuses BM25 text results and HNSW vector results into a
// single ranked response, the same way a federation merger fuses results
// across shards: rank-based (RRF) or score-based (weighted sum with
// normalization), with an optional post-merge filter and re-scoring step.
package hybrid

// Strategy names a fusion algorithm.
type Strategy string

const (
	StrategyRRF      Strategy = "rrf"
	StrategyWeighted Strategy = "weighted"
)

// Normalization names a score-normalization mode applied before weighted
// fusion (RRF ignores raw scores entirely and needs none of these).
type Normalization string

const (
	NormalizationNone        Normalization = "none"
	NormalizationMaxNorm     Normalization = "max_norm"
	NormalizationMetricAware Normalization = "metric_aware"
)

// Weights balances the text and vector contribution for weighted fusion.
type Weights struct {
	Text   float64
	Vector float64
}

// DefaultWeights splits evenly between the two retrieval paths.
func DefaultWeights() Weights {
	return Weights{Text: 0.5, Vector: 0.5}
}

// Metric names the vector distance metric in effect for a collection, used
// only by metric_aware normalization.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// Request describes one hybrid query. Either TextQuery or Vector (or both)
// must be set; the coordinator classifies the query from whichever is
// present.
type Request struct {
	TextQuery     string
	TextFields    []string
	Vector        []float32
	Limit         int
	Strategy      Strategy
	Weights       Weights
	RRFK          int
	Normalization Normalization
	MinScore      *float64
	ScoreExpr     string
}

// DefaultRRFK is the RRF smoothing constant recommended across the
// industry (Azure AI Search, OpenSearch) and used as this system's default.
const DefaultRRFK = 60

// Result is a single fused, ranked hit.
type Result struct {
	ID         string
	Score      float64
	Fields     map[string]any
	TextScore  float64
	TextRank   int
	VecScore   float64
	VecRank    int
	InBoth     bool
	Highlights []string
}

// Outcome is the response of a hybrid search: the fused, truncated result
// page, plus Total preserved as the sum of the participating lists' own
// totals (not deduplicated — callers expect "matches" semantics, not
// "unique documents returned").
type Outcome struct {
	Results []Result
	Total   int
}

// rankedHit is the minimal per-source shape the fuser needs; the
// coordinator adapts textindex.Result / vector.Result into these so
// fusion.go has no dependency on either backend package.
type rankedHit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

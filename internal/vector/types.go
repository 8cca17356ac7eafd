// Package vector implements the sharded approximate-NN retrieval path:
// individual HNSW segments, the shard that owns an active segment plus
// sealed ones, and the sharded index that routes documents and fans out
// queries across shards.
package vector

import "context"

// Metric is the distance/similarity function a segment's ANN index uses.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// Document is a single record indexed into a segment: its embedding plus
// whatever stored payload the collection keeps alongside it.
type Document struct {
	ID     string
	Vector []float32
	Fields map[string]any
}

// Result is a single ranked hit returned by a segment, shard, or sharded
// index search.
type Result struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// Config configures a sharded vector index and every segment it creates.
type Config struct {
	Dimensions          int
	Metric              Metric
	M                    int
	EfConstruction       int
	EfSearch             int
	NumShards            int
	ShardOversample      float64
	CompactionThreshold  float64 // tombstone ratio above which a sealed segment is a compaction candidate
}

// DefaultConfig returns the defaults named in the collection schema:
// m=16, ef_search=20 (coder/hnsw recommendation), 4 shards, 2.5x oversample,
// 0.2 compaction threshold.
func DefaultConfig(dimensions int, metric Metric) Config {
	return Config{
		Dimensions:          dimensions,
		Metric:              metric,
		M:                   16,
		EfConstruction:      128,
		EfSearch:            20,
		NumShards:           4,
		ShardOversample:     2.5,
		CompactionThreshold: 0.2,
	}
}

// Index is the contract the hybrid coordinator and collection manager code
// against; ShardedIndex is the only production implementation.
type Index interface {
	Index(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query []float32, k int) (*SearchOutcome, error)
	Get(ctx context.Context, id string) (*Document, bool)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// SearchOutcome carries a merged, truncated result list plus whether every
// shard contributed (IsPartial false) or some shard failed (true).
type SearchOutcome struct {
	Results   []Result
	IsPartial bool
}

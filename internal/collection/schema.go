// Package collection owns per-collection schemas and the lifecycle of the
// backend bindings (text, vector, or both fused through the hybrid
// coordinator) that serve them.
package collection

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prism-db/prism/internal/hybrid"
	"github.com/prism-db/prism/internal/textindex"
	"github.com/prism-db/prism/internal/vector"
)

// BackendKind names one of the retrieval engines a collection can enable.
type BackendKind string

const (
	BackendText   BackendKind = "text"
	BackendVector BackendKind = "vector"
	BackendGraph  BackendKind = "graph"
)

// TextBackendConfig configures the BM25 text backend for a collection.
type TextBackendConfig struct {
	Fields []string `yaml:"fields"`
	K1     float64  `yaml:"k1"`
	B      float64  `yaml:"b"`
}

// VectorBackendConfig configures the HNSW vector backend for a collection.
// Dimensions and NumShards are immutable once a collection is created.
type VectorBackendConfig struct {
	Dimensions      int           `yaml:"dimensions"`
	Metric          vector.Metric `yaml:"metric"`
	M               int           `yaml:"m"`
	EfConstruction  int           `yaml:"ef_construction"`
	EfSearch        int           `yaml:"ef_search"`
	NumShards       int           `yaml:"num_shards"`
	ShardOversample float64       `yaml:"shard_oversample"`
}

// HybridConfig is the schema's default fusion behavior; per-request
// queries may override the strategy, RRF k and weights. Normalization
// always comes from the schema.
type HybridConfig struct {
	DefaultStrategy hybrid.Strategy      `yaml:"default_strategy"`
	RRFK            int                  `yaml:"rrf_k"`
	TextWeight      float64              `yaml:"text_weight"`
	VectorWeight    float64              `yaml:"vector_weight"`
	Normalization   hybrid.Normalization `yaml:"normalization"`
}

// BoostingConfig layers field weights and recency decay atop raw fusion
// scores. Recency/boost application is left to the query layer; the
// schema only carries the configuration.
type BoostingConfig struct {
	FieldWeights map[string]float64 `yaml:"field_weights"`
	RecencyField string             `yaml:"recency_field"`
	RecencyScale float64            `yaml:"recency_scale"`
	BoostField   string             `yaml:"boost_field"`
}

// Schema is one collection's full configuration, loaded from a single YAML
// file per collection.
type Schema struct {
	Name     string              `yaml:"name"`
	Backends map[BackendKind]bool `yaml:"backends"`
	Text     *TextBackendConfig  `yaml:"text"`
	Vector   *VectorBackendConfig `yaml:"vector"`
	Hybrid   HybridConfig        `yaml:"hybrid"`
	Boosting BoostingConfig      `yaml:"boosting"`
}

// HasBackend reports whether kind is enabled for this schema.
func (s Schema) HasBackend(kind BackendKind) bool {
	return s.Backends[kind]
}

// DefaultHybridConfig returns the conventional defaults, used when a schema
// enables hybrid search but does not specify every field.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		DefaultStrategy: hybrid.StrategyRRF,
		RRFK:            hybrid.DefaultRRFK,
		TextWeight:      0.5,
		VectorWeight:    0.5,
		Normalization:   hybrid.NormalizationNone,
	}
}

// LoadSchema reads and parses a single schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema := &Schema{Hybrid: DefaultHybridConfig()}
	if err := yaml.Unmarshal(data, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

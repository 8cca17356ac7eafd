package collection

import (
	"testing"

	"github.com/prism-db/prism/internal/hybrid"
	"github.com/stretchr/testify/assert"
)

func textOnlySchema() Schema {
	return Schema{
		Name:     "articles",
		Backends: map[BackendKind]bool{BackendText: true},
		Text:     &TextBackendConfig{Fields: []string{"title", "content"}, K1: 1.2, B: 0.75},
		Hybrid:   DefaultHybridConfig(),
	}
}

func TestLint_NoBackendsIsFatal(t *testing.T) {
	schema := Schema{Name: "empty"}
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_GraphBackendIsFatal(t *testing.T) {
	schema := textOnlySchema()
	schema.Backends[BackendGraph] = true
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_TextWithNoFieldsIsFatal(t *testing.T) {
	schema := Schema{Name: "bad", Backends: map[BackendKind]bool{BackendText: true}}
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_VectorWithInvalidDimensionsIsFatal(t *testing.T) {
	schema := Schema{
		Name:     "bad-vec",
		Backends: map[BackendKind]bool{BackendVector: true},
		Vector:   &VectorBackendConfig{Dimensions: 0},
	}
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_NonDefaultBM25ParamsIsWarningOnly(t *testing.T) {
	schema := textOnlySchema()
	schema.Text.K1 = 2.0
	result := Lint(schema)
	assert.True(t, result.OK())
	assert.NotEmpty(t, result.Warnings)
}

func TestLint_NegativeHybridWeightsIsFatal(t *testing.T) {
	schema := textOnlySchema()
	schema.Backends[BackendVector] = true
	schema.Vector = &VectorBackendConfig{Dimensions: 4, Metric: "cosine"}
	schema.Hybrid.TextWeight = -1
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_UnknownMergeStrategyIsFatal(t *testing.T) {
	schema := textOnlySchema()
	schema.Backends[BackendVector] = true
	schema.Vector = &VectorBackendConfig{Dimensions: 4, Metric: "cosine"}
	schema.Hybrid.DefaultStrategy = hybrid.Strategy("unknown")
	result := Lint(schema)
	assert.False(t, result.OK())
}

func TestLint_ValidHybridSchemaPasses(t *testing.T) {
	schema := textOnlySchema()
	schema.Backends[BackendVector] = true
	schema.Vector = &VectorBackendConfig{Dimensions: 4, Metric: "cosine"}
	result := Lint(schema)
	assert.True(t, result.OK())
}

package collection

import (
	"fmt"

	"github.com/prism-db/prism/internal/hybrid"
)

// LintResult separates startup-fatal problems from advisory warnings; only
// Errors block the collection from loading.
type LintResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the schema has no fatal lint errors.
func (r LintResult) OK() bool {
	return len(r.Errors) == 0
}

// defaultK1 and defaultB are bleve/BM25's conventional parameters; schemas
// that deviate trigger a non-fatal warning so operators notice an
// unintentional override.
const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Lint validates a schema at load time. Unknown backend combinations and
// invalid weights are fatal; non-default BM25 parameters are warnings,
// kept by Manager.LintWarnings rather than blocking startup.
func Lint(schema Schema) LintResult {
	var result LintResult

	enabledAny := schema.HasBackend(BackendText) || schema.HasBackend(BackendVector)
	if !enabledAny {
		result.Errors = append(result.Errors, fmt.Sprintf("collection %q enables no backend", schema.Name))
	}

	if schema.HasBackend(BackendGraph) {
		result.Errors = append(result.Errors, fmt.Sprintf("collection %q enables graph backend, which is not implemented", schema.Name))
	}

	if schema.HasBackend(BackendText) {
		if schema.Text == nil || len(schema.Text.Fields) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("collection %q enables text backend with no indexed fields", schema.Name))
		} else {
			if schema.Text.K1 == 0 {
				schema.Text.K1 = defaultK1
			}
			if schema.Text.B == 0 {
				schema.Text.B = defaultB
			}
			if schema.Text.K1 != defaultK1 || schema.Text.B != defaultB {
				result.Warnings = append(result.Warnings, fmt.Sprintf("collection %q uses non-default BM25 parameters (k1=%.2f, b=%.2f)", schema.Name, schema.Text.K1, schema.Text.B))
			}
		}
	}

	if schema.HasBackend(BackendVector) {
		if schema.Vector == nil || schema.Vector.Dimensions <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("collection %q enables vector backend with invalid dimensions", schema.Name))
		}
		if schema.Vector != nil {
			switch schema.Vector.Metric {
			case "cosine", "euclidean", "dot", "":
			default:
				result.Errors = append(result.Errors, fmt.Sprintf("collection %q has unknown vector metric %q", schema.Name, schema.Vector.Metric))
			}
			if schema.Vector.NumShards < 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("collection %q has negative num_shards", schema.Name))
			}
		}
	}

	if schema.HasBackend(BackendText) && schema.HasBackend(BackendVector) {
		switch schema.Hybrid.DefaultStrategy {
		case hybrid.Strategy(""), hybrid.StrategyRRF, hybrid.StrategyWeighted:
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("collection %q has unknown merge strategy %q", schema.Name, schema.Hybrid.DefaultStrategy))
		}
		if schema.Hybrid.TextWeight < 0 || schema.Hybrid.VectorWeight < 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("collection %q has negative hybrid weights", schema.Name))
		}
		switch schema.Hybrid.Normalization {
		case hybrid.Normalization(""), hybrid.NormalizationNone, hybrid.NormalizationMaxNorm, hybrid.NormalizationMetricAware:
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("collection %q has unknown normalization mode %q", schema.Name, schema.Hybrid.Normalization))
		}
	}

	return result
}

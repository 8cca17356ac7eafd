package hybrid

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prism-db/prism/internal/textindex"
	"github.com/prism-db/prism/internal/vector"
)

// Coordinator runs a hybrid query against one collection's text and
// vector backends, fusing the two ranked lists per the requested strategy.
// Either backend may be nil for a text-only or vector-only collection.
type Coordinator struct {
	text   textindex.Backend
	vec    vector.Index
	metric Metric
}

// NewCoordinator binds a coordinator to a collection's backends. Passing a
// nil text or vec restricts the coordinator to the remaining modality.
func NewCoordinator(text textindex.Backend, vec vector.Index, metric Metric) *Coordinator {
	return &Coordinator{text: text, vec: vec, metric: metric}
}

// Search classifies req as text-only, vector-only, or hybrid, issues the
// applicable backend queries concurrently, fuses the results, and applies
// any post-merge min-score filter and re-score expression.
func (c *Coordinator) Search(ctx context.Context, req Request) (*Outcome, error) {
	wantText := strings.TrimSpace(req.TextQuery) != "" && c.text != nil
	wantVector := len(req.Vector) > 0 && c.vec != nil

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	fanoutK := limit
	if wantText && wantVector {
		// Over-fetch each side so fusion has enough candidates to re-rank.
		fanoutK = limit * 3
	}

	var (
		textHits        []rankedHit
		vecHits         []rankedHit
		textTotal       int
		vecTotal        int
		textErr, vecErr error
		wg              sync.WaitGroup
	)

	if wantText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := c.text.Search(ctx, textindex.Query{
				QueryString: req.TextQuery,
				Fields:      req.TextFields,
				Limit:       fanoutK,
			})
			if err != nil {
				textErr = err
				return
			}
			textTotal = outcome.Total
			textHits = make([]rankedHit, len(outcome.Results))
			for i, r := range outcome.Results {
				textHits[i] = rankedHit{ID: r.ID, Score: r.Score, Fields: r.Fields}
			}
		}()
	}

	if wantVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := c.vec.Search(ctx, req.Vector, fanoutK)
			if err != nil {
				vecErr = err
				return
			}
			vecTotal = len(outcome.Results)
			vecHits = make([]rankedHit, len(outcome.Results))
			for i, r := range outcome.Results {
				vecHits[i] = rankedHit{ID: r.ID, Score: float64(r.Score), Fields: r.Fields}
			}
		}()
	}

	wg.Wait()

	if wantText && textErr != nil {
		return nil, textErr
	}
	if wantVector && vecErr != nil {
		return nil, vecErr
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyRRF
	}

	var results []Result
	switch strategy {
	case StrategyWeighted:
		weights := req.Weights
		if weights.Text == 0 && weights.Vector == 0 {
			weights = DefaultWeights()
		}
		results = fuseWeighted(textHits, vecHits, weights, req.Normalization, c.metric)
	default:
		results = fuseRRF(textHits, vecHits, req.RRFK)
	}

	if req.MinScore != nil {
		results = filterMinScore(results, *req.MinScore)
	}

	if req.ScoreExpr != "" {
		if err := rescore(results, req.ScoreExpr); err != nil {
			return nil, err
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}

	return &Outcome{Results: results, Total: textTotal + vecTotal}, nil
}

func filterMinScore(results []Result, min float64) []Result {
	out := results[:0:0]
	for _, r := range results {
		if r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

func rescore(results []Result, expr string) error {
	for i := range results {
		v, err := evalScoreExpr(expr, results[i].Score, results[i].Fields)
		if err != nil {
			return err
		}
		results[i].Score = v
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return nil
}

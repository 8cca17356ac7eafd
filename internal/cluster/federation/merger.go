package federation

import "sort"

// ResultMerger merges shard results under a configurable default strategy.
type ResultMerger struct {
	DefaultStrategy Strategy
}

// NewResultMerger returns a ResultMerger that falls back to def when a
// caller passes an empty Strategy to Merge.
func NewResultMerger(def Strategy) *ResultMerger {
	if def == "" {
		def = StrategySimple
	}
	return &ResultMerger{DefaultStrategy: def}
}

// Merge combines shardResults into one ranked, deduplicated, limit-truncated
// list. A shard with a non-nil Err contributes no hits and marks the result
// Partial.
func (m *ResultMerger) Merge(shardResults []ShardResult, limit int, strategy Strategy, opts Options) *MergedResult {
	if strategy == "" {
		strategy = m.DefaultStrategy
	}

	partial := false
	total := 0
	usable := make([]ShardResult, 0, len(shardResults))
	for _, sr := range shardResults {
		if sr.Err != nil {
			partial = true
			continue
		}
		usable = append(usable, sr)
		total += sr.Total
	}

	var results []Hit
	switch strategy {
	case StrategyScoreNormalized:
		results = mergeNormalized(usable, limit)
	case StrategyRRF:
		k := opts.RRFK
		if k <= 0 {
			k = DefaultRRFK
		}
		results = mergeRRF(usable, limit, k)
	case StrategyWeighted:
		results = mergeWeighted(usable, limit, opts.Weights)
	case StrategySimple:
		fallthrough
	default:
		results = mergeSimple(usable, limit)
	}

	return &MergedResult{
		Results:      results,
		Total:        total,
		StrategyUsed: strategy,
		Partial:      partial,
	}
}

// mergeSimple concatenates every shard's hits, sorts by score descending,
// deduplicates by id keeping the first (therefore highest-scored)
// occurrence, and truncates to limit.
func mergeSimple(shardResults []ShardResult, limit int) []Hit {
	all := flatten(shardResults)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	return truncate(dedupKeepFirst(all), limit)
}

// mergeNormalized min-max normalizes each shard's scores independently
// before merging, so no single shard's score scale dominates the others.
func mergeNormalized(shardResults []ShardResult, limit int) []Hit {
	normalized := make([]ShardResult, len(shardResults))
	for i, sr := range shardResults {
		hits := append([]Hit(nil), sr.Results...)
		minMaxNormalize(hits)
		normalized[i] = ShardResult{ShardID: sr.ShardID, Results: hits}
	}
	return mergeSimple(normalized, limit)
}

// mergeWeighted multiplies each shard's scores by its configured weight
// (default 1.0 for an unlisted shard) before running the same sort-dedup-
// truncate pass as mergeSimple. This resolves the open question of how a
// weighted cross-shard merge should behave: weights are applied as
// multipliers before dedup, rather than leaving the strategy an alias for
// Simple.
func mergeWeighted(shardResults []ShardResult, limit int, weights map[string]float64) []Hit {
	weighted := make([]ShardResult, len(shardResults))
	for i, sr := range shardResults {
		w := 1.0
		if weights != nil {
			if v, ok := weights[sr.ShardID]; ok {
				w = v
			}
		}
		hits := make([]Hit, len(sr.Results))
		for j, h := range sr.Results {
			hits[j] = Hit{ID: h.ID, Score: h.Score * w, Fields: h.Fields}
		}
		weighted[i] = ShardResult{ShardID: sr.ShardID, Results: hits}
	}
	return mergeSimple(weighted, limit)
}

// rrfDoc accumulates a document's RRF score across shard lists; insertion
// tracks first-seen order across shards for the tie-break.
type rrfDoc struct {
	id        string
	score     float64
	fields    map[string]any
	insertion int
}

// mergeRRF accumulates score(d) += 1/(k+rank+1) for each shard list d
// appears in (rank is the 0-based position, so this is 1/(k+r) for the
// 1-based rank r), across all shard result lists, then sorts
// descending with ties broken by first-seen order.
func mergeRRF(shardResults []ShardResult, limit int, k int) []Hit {
	index := make(map[string]*rrfDoc)
	order := make([]*rrfDoc, 0)

	for _, sr := range shardResults {
		for rank, h := range sr.Results {
			d, ok := index[h.ID]
			if !ok {
				d = &rrfDoc{id: h.ID, fields: h.Fields, insertion: len(order)}
				index[h.ID] = d
				order = append(order, d)
			}
			d.score += 1 / float64(k+rank+1)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].insertion < order[j].insertion
	})

	hits := make([]Hit, 0, len(order))
	for _, d := range order {
		hits = append(hits, Hit{ID: d.id, Score: d.score, Fields: d.fields})
	}
	return truncate(hits, limit)
}

func flatten(shardResults []ShardResult) []Hit {
	total := 0
	for _, sr := range shardResults {
		total += len(sr.Results)
	}
	all := make([]Hit, 0, total)
	for _, sr := range shardResults {
		all = append(all, sr.Results...)
	}
	return all
}

// dedupKeepFirst assumes hits is already sorted by descending score and
// keeps only the first (highest-scored) occurrence of each id.
func dedupKeepFirst(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}

func truncate(hits []Hit, limit int) []Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// minMaxNormalize rescales hits in place to [0,1]. When every score is
// equal (zero range) every hit normalizes to 1.0 rather than dividing by
// zero, matching the "no signal to discriminate by, treat all as equally
// relevant" convention used elsewhere in the merge path.
func minMaxNormalize(hits []Hit) {
	if len(hits) == 0 {
		return
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	rng := max - min
	for i := range hits {
		if rng > 0 {
			hits[i].Score = (hits[i].Score - min) / rng
		} else {
			hits[i].Score = 1.0
		}
	}
}

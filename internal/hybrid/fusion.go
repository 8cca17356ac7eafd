package hybrid

import "sort"

// fused accumulates a document's contributions across the text and vector
// lists before final sorting; insertion tracks first-seen order so RRF
// ties break by insertion order as the contract requires.
type fused struct {
	id         string
	score      float64
	textScore  float64
	textRank   int
	vecScore   float64
	vecRank    int
	inBoth     bool
	fields     map[string]any
	insertion  int
}

// fuseRRF combines text and vector hits by Reciprocal Rank Fusion:
// score(d) += 1/(k+rank) for each list d appears in, 1-based rank. Ties
// break by insertion order (text list first, then vector).
func fuseRRF(text, vec []rankedHit, k int) []Result {
	if k <= 0 {
		k = DefaultRRFK
	}

	index := make(map[string]*fused, len(text)+len(vec))
	order := make([]*fused, 0, len(text)+len(vec))

	getOrCreate := func(id string, fields map[string]any) *fused {
		if f, ok := index[id]; ok {
			if f.fields == nil {
				f.fields = fields
			}
			return f
		}
		f := &fused{id: id, fields: fields, insertion: len(order)}
		index[id] = f
		order = append(order, f)
		return f
	}

	for rank, h := range text {
		f := getOrCreate(h.ID, h.Fields)
		f.textScore = h.Score
		f.textRank = rank + 1
		f.score += 1 / float64(k+rank+1)
	}
	for rank, h := range vec {
		f := getOrCreate(h.ID, h.Fields)
		f.vecScore = h.Score
		f.vecRank = rank + 1
		f.score += 1 / float64(k+rank+1)
		if f.textRank > 0 {
			f.inBoth = true
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].insertion < order[j].insertion
	})

	return toResults(order)
}

// fuseWeighted normalizes each list per mode, then combines by
// score(d) = wText*norm_text(d) + wVec*norm_vec(d); a document missing from
// a list contributes 0 for that list.
func fuseWeighted(text, vec []rankedHit, weights Weights, mode Normalization, metric Metric) []Result {
	textCopy := append([]rankedHit(nil), text...)
	vecCopy := append([]rankedHit(nil), vec...)
	normalize(textCopy, mode, metric, true)
	normalize(vecCopy, mode, metric, false)

	index := make(map[string]*fused, len(textCopy)+len(vecCopy))
	order := make([]*fused, 0, len(textCopy)+len(vecCopy))

	getOrCreate := func(id string, fields map[string]any) *fused {
		if f, ok := index[id]; ok {
			if f.fields == nil {
				f.fields = fields
			}
			return f
		}
		f := &fused{id: id, fields: fields, insertion: len(order)}
		index[id] = f
		order = append(order, f)
		return f
	}

	for i, h := range textCopy {
		f := getOrCreate(h.ID, h.Fields)
		f.textScore = text[i].Score
		f.textRank = i + 1
		f.score += weights.Text * h.Score
	}
	for i, h := range vecCopy {
		f := getOrCreate(h.ID, h.Fields)
		f.vecScore = vec[i].Score
		f.vecRank = i + 1
		f.score += weights.Vector * h.Score
		if f.textRank > 0 {
			f.inBoth = true
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].insertion < order[j].insertion
	})

	return toResults(order)
}

func toResults(order []*fused) []Result {
	results := make([]Result, 0, len(order))
	for _, f := range order {
		results = append(results, Result{
			ID:        f.id,
			Score:     f.score,
			Fields:    f.fields,
			TextScore: f.textScore,
			TextRank:  f.textRank,
			VecScore:  f.vecScore,
			VecRank:   f.vecRank,
			InBoth:    f.inBoth,
		})
	}
	return results
}

package hybrid

// normalize rescales hits in place per mode. text is true when normalizing
// the text list (BM25 scores, always non-negative), false for the vector
// list (sign depends on metric).
func normalize(hits []rankedHit, mode Normalization, metric Metric, isText bool) {
	switch mode {
	case NormalizationNone:
		return
	case NormalizationMaxNorm:
		maxNorm(hits)
	case NormalizationMetricAware:
		metricAware(hits, metric, isText)
	}
}

// maxNorm divides every score by the list's maximum; a non-positive max
// yields all zeros rather than dividing by a non-positive number.
func maxNorm(hits []rankedHit) {
	if len(hits) == 0 {
		return
	}
	max := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		for i := range hits {
			hits[i].Score = 0
		}
		return
	}
	for i := range hits {
		hits[i].Score /= max
	}
}

// metricAware picks the right normalization per source and metric. BM25
// scores get max_norm. Vector scores already arrive as a
// distance-to-similarity conversion done by the vector backend itself
// (cosine and Euclidean distances are both folded into a similarity in
// the segment search path), so here cosine is clamped to non-negative and
// used as-is, while Euclidean and dot are max-normalized like BM25.
func metricAware(hits []rankedHit, metric Metric, isText bool) {
	if isText {
		maxNorm(hits)
		return
	}

	switch metric {
	case MetricCosine:
		for i := range hits {
			if hits[i].Score < 0 {
				hits[i].Score = 0
			}
		}
	case MetricEuclidean, MetricDot:
		maxNorm(hits)
	default:
		maxNorm(hits)
	}
}

// Package textindex adapts bleve's full-text engine to the core's
// SearchBackend contract: the same index/search/get/delete/stats surface
// the vector backend exposes, so the hybrid coordinator and collection
// manager can treat either backend uniformly.
package textindex

import "context"

// Document is a record indexed into the text backend. Fields holds the
// full stored payload; TextFields names which of those fields actually get
// analyzed and searched.
type Document struct {
	ID     string
	Fields map[string]any
}

// Highlight carries the matched fragment for a field, when highlighting was
// requested.
type Highlight struct {
	Field     string
	Fragments []string
}

// Result is a single ranked hit.
type Result struct {
	ID        string
	Score     float64
	Fields    map[string]any
	Highlight []Highlight
}

// HighlightConfig requests highlighted fragments for the named fields.
type HighlightConfig struct {
	Fields        []string
	FragmentSize  int
	MaxFragments  int
}

// Query describes a text search request.
type Query struct {
	QueryString string
	Fields      []string           // defaults to the schema's indexed text fields
	FieldWeight map[string]float64 // per-field boost, defaults to 1.0
	Limit       int
	Offset      int
	Highlight   *HighlightConfig
}

// Stats summarizes the current state of the text index.
type Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// Outcome carries a ranked result page plus the total number of matches,
// mirroring the vector backend's total semantics for hybrid merge.
type Outcome struct {
	Results []Result
	Total   int
}

// Config configures a collection's text backend, carrying the schema's BM25
// params. NewBleveBackend applies TextFields only: K1 and B do not change
// bleve's scoring, MinTokenLength is not enforced, and the stop-word filter
// always uses DefaultStopWords.
type Config struct {
	K1             float64
	B              float64
	TextFields     []string
	MinTokenLength int
	StopWords      []string
}

// DefaultConfig returns bleve/BM25's standard parameters.
func DefaultConfig(textFields []string) Config {
	return Config{
		K1:             1.2,
		B:              0.75,
		TextFields:     textFields,
		MinTokenLength: 2,
		StopWords:      DefaultStopWords,
	}
}

// DefaultStopWords filters common low-signal tokens from free-text fields.
var DefaultStopWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been",
	"of", "to", "in", "on", "at", "for", "and", "or", "but",
}

// Backend is the SearchBackend contract the core relies on: index, search,
// get, delete, stats. Implementations must hold a consistent snapshot for
// the duration of a search even if a concurrent index() commits new
// segments.
type Backend interface {
	Index(ctx context.Context, docs []Document) error
	Search(ctx context.Context, q Query) (*Outcome, error)
	Get(ctx context.Context, id string) (*Document, bool)
	Delete(ctx context.Context, ids []string) error
	Stats() Stats
	Close() error
}

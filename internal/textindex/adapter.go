package textindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

const (
	stopFilterName = "prism_stop"
	analyzerName   = "prism_text"
)

func init() {
	_ = registry.RegisterTokenFilter(stopFilterName, stopFilterConstructor)
}

// BleveBackend implements Backend over a bleve full-text index. It holds a
// consistent snapshot for the duration of a search by delegating to
// bleve's own SearchInContext, which reads against the index reader it
// opens at call time regardless of concurrent commits.
type BleveBackend struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	cfg    Config
	closed bool

	// fields mirrors each document's stored payload; bleve only needs to
	// see the text-field content to score and highlight.
	fields map[string]map[string]any
}

// NewBleveBackend opens (or creates) a bleve index at path. An empty path
// creates an in-memory index, used by tests and single-process deployments
// without a collections directory configured.
func NewBleveBackend(path string, cfg Config) (*BleveBackend, error) {
	indexMapping, err := buildMapping(cfg)
	if err != nil {
		return nil, prismerrors.Backend("failed to build text index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, prismerrors.Storage("failed to create text index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, prismerrors.Backend("failed to open text index", err)
	}

	return &BleveBackend{
		index:  idx,
		path:   path,
		cfg:    cfg,
		fields: make(map[string]map[string]any),
	}, nil
}

func buildMapping(cfg Config) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": "unicode",
		"token_filters": []string{
			lowercase.Name,
			stopFilterName,
		},
	}); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

// bleveDoc is the flattened shape handed to bleve: one string per
// configured text field, so per-field match queries and highlighting work.
type bleveDoc map[string]string

func (b *BleveBackend) flatten(fields map[string]any) bleveDoc {
	doc := make(bleveDoc, len(b.cfg.TextFields))
	for _, f := range b.cfg.TextFields {
		v, ok := fields[f]
		if !ok {
			continue
		}
		doc[f] = fmt.Sprintf("%v", v)
	}
	return doc
}

// Index adds or replaces documents. Replacing keeps the bimap of stored
// fields in sync alongside the bleve batch.
func (b *BleveBackend) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return prismerrors.Backend("text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, b.flatten(d.Fields)); err != nil {
			return prismerrors.Backend(fmt.Sprintf("failed to index document %s", d.ID), err)
		}
		b.fields[d.ID] = d.Fields
	}

	if err := b.index.Batch(batch); err != nil {
		return prismerrors.Backend("failed to commit text index batch", err)
	}
	return nil
}

// Search runs q against the configured text fields, weighting each by
// FieldWeight (default 1.0), and returns a ranked, non-negative, internally
// comparable score list per field as required by the core contract.
func (b *BleveBackend) Search(ctx context.Context, q Query) (*Outcome, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, prismerrors.Backend("text index is closed", nil)
	}
	if strings.TrimSpace(q.QueryString) == "" {
		return &Outcome{}, nil
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = b.cfg.TextFields
	}

	disjunction := bleve.NewDisjunctionQuery()
	for _, f := range fields {
		mq := bleve.NewMatchQuery(q.QueryString)
		mq.SetField(f)
		if w, ok := q.FieldWeight[f]; ok && w > 0 {
			mq.SetBoost(w)
		}
		disjunction.AddQuery(mq)
	}

	req := bleve.NewSearchRequest(disjunction)
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	req.Size = limit
	req.From = q.Offset
	req.IncludeLocations = q.Highlight != nil

	if q.Highlight != nil {
		req.Highlight = bleve.NewHighlightWithStyle(html.Name)
		for _, f := range q.Highlight.Fields {
			req.Highlight.AddField(f)
		}
	}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, prismerrors.Backend("text search failed", err)
	}

	results := make([]Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		r := Result{
			ID:     hit.ID,
			Score:  hit.Score,
			Fields: b.fields[hit.ID],
		}
		if q.Highlight != nil {
			for field, fragments := range hit.Fragments {
				r.Highlight = append(r.Highlight, Highlight{Field: field, Fragments: fragments})
			}
		}
		results = append(results, r)
	}

	return &Outcome{Results: results, Total: int(result.Total)}, nil
}

// Get returns the stored fields for a document id.
func (b *BleveBackend) Get(ctx context.Context, id string) (*Document, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fields, ok := b.fields[id]
	if !ok {
		return nil, false
	}
	return &Document{ID: id, Fields: fields}, true
}

// Delete removes documents from the index.
func (b *BleveBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return prismerrors.Backend("text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
		delete(b.fields, id)
	}
	if err := b.index.Batch(batch); err != nil {
		return prismerrors.Backend("failed to delete documents from text index", err)
	}
	return nil
}

// Stats reports document count and the index's own term/length tracking,
// which bleve does not expose directly; only DocumentCount is populated.
func (b *BleveBackend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return Stats{}
	}
	count, _ := b.index.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Close releases the underlying bleve index.
func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ Backend = (*BleveBackend)(nil)

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &stopFilter{stopWords: buildStopWordSet(DefaultStopWords)}, nil
}

type stopFilter struct {
	stopWords map[string]struct{}
}

func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

func buildStopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

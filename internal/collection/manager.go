package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	prismerrors "github.com/prism-db/prism/internal/errors"
	"github.com/prism-db/prism/internal/hybrid"
	"github.com/prism-db/prism/internal/textindex"
	"github.com/prism-db/prism/internal/vector"
)

// Document is the wire-level record shape shared by every backend.
type Document struct {
	ID     string
	Fields map[string]any
}

// SearchRequest is the unified query shape the manager accepts; absent
// fields fall back to the collection's schema defaults.
type SearchRequest struct {
	QueryString   string
	Vector        []float32
	Fields        []string
	Limit         int
	Offset        int
	MergeStrategy hybrid.Strategy
	TextWeight    *float64
	VectorWeight  *float64
	RRFK          *int
	MinScore      *float64
	ScoreFunction string
	Highlight     *textindex.HighlightConfig
}

// BackendStats summarizes a collection's current size across its enabled
// backends.
type BackendStats struct {
	DocumentCount int
	TextStats     *textindex.Stats
	VectorStats   *vector.Stats
}

// binding is the set of live engines backing one collection.
type binding struct {
	schema      Schema
	text        textindex.Backend
	vec         vector.Index
	coordinator *hybrid.Coordinator
}

// Manager loads every collection schema from a directory at startup, lints
// each one, and owns the resulting backend bindings for the lifetime of
// the process.
type Manager struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	warnings map[string][]string
}

// NewManagerFromDir loads all `*.yaml`/`*.yml` schema files under dir. A
// collection whose schema fails a fatal lint check aborts the whole load;
// warnings are collected and retrievable per collection.
func NewManagerFromDir(dir string) (*Manager, error) {
	m := &Manager{
		bindings: make(map[string]*binding),
		warnings: make(map[string][]string),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, prismerrors.Storage("failed to read collections directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		schema, err := LoadSchema(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, prismerrors.Wrap("ERR_SCHEMA_LOAD", err)
		}
		if err := m.addCollection(*schema); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// NewManager creates an empty manager, for programmatic collection
// registration (tests, embedding the engine in another process).
func NewManager() *Manager {
	return &Manager{
		bindings: make(map[string]*binding),
		warnings: make(map[string][]string),
	}
}

// AddCollection lints and registers one schema, failing on any fatal
// finding.
func (m *Manager) AddCollection(schema Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCollection(schema)
}

func (m *Manager) addCollection(schema Schema) error {
	lint := Lint(schema)
	m.warnings[schema.Name] = lint.Warnings
	if !lint.OK() {
		return prismerrors.New("ERR_SCHEMA_INVALID", strings.Join(lint.Errors, "; "), nil)
	}

	b := &binding{schema: schema}

	if schema.HasBackend(BackendText) {
		backend, err := textindex.NewBleveBackend("", textindex.Config{
			K1:         schema.Text.K1,
			B:          schema.Text.B,
			TextFields: schema.Text.Fields,
		})
		if err != nil {
			return err
		}
		b.text = backend
	}

	if schema.HasBackend(BackendVector) {
		cfg := vector.Config{
			Dimensions:          schema.Vector.Dimensions,
			Metric:              schema.Vector.Metric,
			M:                   schema.Vector.M,
			EfConstruction:      schema.Vector.EfConstruction,
			EfSearch:            schema.Vector.EfSearch,
			NumShards:           schema.Vector.NumShards,
			ShardOversample:     schema.Vector.ShardOversample,
			CompactionThreshold: 0.2,
		}
		if cfg.NumShards <= 0 {
			cfg.NumShards = 1
		}
		if cfg.ShardOversample <= 0 {
			cfg.ShardOversample = 2.5
		}
		b.vec = vector.NewShardedIndex(cfg)
	}

	metric := hybrid.MetricCosine
	if schema.Vector != nil {
		metric = hybrid.Metric(schema.Vector.Metric)
	}
	b.coordinator = hybrid.NewCoordinator(b.text, b.vec, metric)

	m.bindings[schema.Name] = b
	return nil
}

func (m *Manager) binding(collection string) (*binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[collection]
	if !ok {
		return nil, prismerrors.New("ERR_COLLECTION_NOT_FOUND", fmt.Sprintf("collection %q not found", collection), nil)
	}
	return b, nil
}

// Index indexes docs into every backend enabled for collection.
func (m *Manager) Index(ctx context.Context, collection string, docs []Document) error {
	b, err := m.binding(collection)
	if err != nil {
		return err
	}

	if b.text != nil {
		textDocs := make([]textindex.Document, len(docs))
		for i, d := range docs {
			textDocs[i] = textindex.Document{ID: d.ID, Fields: d.Fields}
		}
		if err := b.text.Index(ctx, textDocs); err != nil {
			return err
		}
	}

	if b.vec != nil {
		vecDocs := make([]vector.Document, 0, len(docs))
		for _, d := range docs {
			vec, err := extractVector(d.Fields)
			if err != nil {
				return err
			}
			vecDocs = append(vecDocs, vector.Document{ID: d.ID, Vector: vec, Fields: d.Fields})
		}
		if err := b.vec.Index(ctx, vecDocs); err != nil {
			return err
		}
	}

	return nil
}

func extractVector(fields map[string]any) ([]float32, error) {
	raw, ok := fields["embedding"]
	if !ok {
		return nil, prismerrors.New("ERR_MISSING_EMBEDDING", "document has no embedding field", nil)
	}
	values, ok := raw.([]float32)
	if ok {
		return values, nil
	}
	anySlice, ok := raw.([]any)
	if !ok {
		return nil, prismerrors.New("ERR_INVALID_EMBEDDING", "embedding field is not a numeric array", nil)
	}
	out := make([]float32, len(anySlice))
	for i, v := range anySlice {
		f, ok := v.(float64)
		if !ok {
			return nil, prismerrors.New("ERR_INVALID_EMBEDDING", "embedding element is not numeric", nil)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// Search runs req against collection, honoring per-request overrides over
// the schema's hybrid defaults.
func (m *Manager) Search(ctx context.Context, collection string, req SearchRequest) (*hybrid.Outcome, error) {
	b, err := m.binding(collection)
	if err != nil {
		return nil, err
	}

	hreq := hybrid.Request{
		TextQuery:     req.QueryString,
		TextFields:    req.Fields,
		Vector:        req.Vector,
		Limit:         req.Limit,
		Strategy:      req.MergeStrategy,
		RRFK:          b.schema.Hybrid.RRFK,
		Normalization: b.schema.Hybrid.Normalization,
		MinScore:      req.MinScore,
		ScoreExpr:     req.ScoreFunction,
		Weights: hybrid.Weights{
			Text:   b.schema.Hybrid.TextWeight,
			Vector: b.schema.Hybrid.VectorWeight,
		},
	}
	if hreq.Strategy == "" {
		hreq.Strategy = b.schema.Hybrid.DefaultStrategy
	}
	if req.TextWeight != nil {
		hreq.Weights.Text = *req.TextWeight
	}
	if req.VectorWeight != nil {
		hreq.Weights.Vector = *req.VectorWeight
	}
	if req.RRFK != nil {
		hreq.RRFK = *req.RRFK
	}

	return b.coordinator.Search(ctx, hreq)
}

// Get fetches a document, preferring the text backend's stored fields
// since text storage carries the full field set verbatim.
func (m *Manager) Get(ctx context.Context, collection, id string) (*Document, bool, error) {
	b, err := m.binding(collection)
	if err != nil {
		return nil, false, err
	}

	if b.text != nil {
		if doc, ok := b.text.Get(ctx, id); ok {
			return &Document{ID: doc.ID, Fields: doc.Fields}, true, nil
		}
	}
	if b.vec != nil {
		if doc, ok := b.vec.Get(ctx, id); ok {
			return &Document{ID: doc.ID, Fields: doc.Fields}, true, nil
		}
	}
	return nil, false, nil
}

// Delete removes ids from every backend enabled for collection.
func (m *Manager) Delete(ctx context.Context, collection string, ids []string) error {
	b, err := m.binding(collection)
	if err != nil {
		return err
	}
	if b.text != nil {
		if err := b.text.Delete(ctx, ids); err != nil {
			return err
		}
	}
	if b.vec != nil {
		if err := b.vec.Delete(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports per-backend sizing for collection.
func (m *Manager) Stats(collection string) (*BackendStats, error) {
	b, err := m.binding(collection)
	if err != nil {
		return nil, err
	}

	stats := &BackendStats{}
	if b.text != nil {
		s := b.text.Stats()
		stats.TextStats = &s
		stats.DocumentCount = s.DocumentCount
	}
	if b.vec != nil {
		if si, ok := b.vec.(*vector.ShardedIndex); ok {
			s := si.Stats()
			stats.VectorStats = &s
			if stats.DocumentCount == 0 {
				stats.DocumentCount = s.LiveCount
			}
		}
	}
	return stats, nil
}

// ListCollections returns every registered collection name.
func (m *Manager) ListCollections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.bindings))
	for name := range m.bindings {
		names = append(names, name)
	}
	return names
}

// GetSchema returns the schema registered for collection.
func (m *Manager) GetSchema(collection string) (*Schema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[collection]
	if !ok {
		return nil, false
	}
	schema := b.schema
	return &schema, true
}

// LintWarnings returns the non-fatal lint findings recorded for collection
// at load time. No admin endpoint serves them.
func (m *Manager) LintWarnings(collection string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.warnings[collection]
}

// Close releases every backend across every registered collection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, b := range m.bindings {
		if b.text != nil {
			if err := b.text.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if b.vec != nil {
			if err := b.vec.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

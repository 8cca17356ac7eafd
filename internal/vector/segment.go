package vector

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/coder/hnsw"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

// segment owns one ANN index over u32 keys plus the bimap and payload store
// that let callers address documents by string id. A segment is either
// active (accepting writes) or sealed (read-only, compaction-eligible).
type segment struct {
	mu sync.RWMutex

	id      uint64
	cfg     Config
	graph   *hnsw.Graph[uint32]
	tomb    *roaring.Bitmap
	idToKey map[string]uint32
	keyToID map[uint32]string
	docs    map[string]map[string]any
	vectors map[string][]float32 // live vectors, kept alongside the graph so compaction can rebuild without reaching into hnsw internals
	nextKey uint32
	sealed  bool
}

// segmentSnapshot is the on-disk shape of a segment's bookkeeping state.
// The HNSW graph itself is persisted separately via its own Export/Import.
type segmentSnapshot struct {
	ID      uint64
	IDToKey map[string]uint32
	Docs    map[string]map[string]any
	Vectors map[string][]float32
	Tomb    []uint32
	NextKey uint32
	Sealed  bool
	Config  Config
}

func newSegment(id uint64, cfg Config) *segment {
	graph := hnsw.NewGraph[uint32]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	case MetricDot:
		graph.Distance = dotDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &segment{
		id:      id,
		cfg:     cfg,
		graph:   graph,
		tomb:    roaring.NewBitmap(),
		idToKey: make(map[string]uint32),
		keyToID: make(map[uint32]string),
		docs:    make(map[string]map[string]any),
		vectors: make(map[string][]float32),
	}
}

// add inserts a document into the segment. Sealed segments reject writes.
func (s *segment) add(docID string, vec []float32, fields map[string]any) error {
	if len(vec) != s.cfg.Dimensions {
		return prismerrors.Backend(
			fmt.Sprintf("vector dimension mismatch: expected %d, got %d", s.cfg.Dimensions, len(vec)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return prismerrors.Backend("segment is sealed, cannot add", nil)
	}

	key := s.nextKey
	s.nextKey++

	stored := make([]float32, len(vec))
	copy(stored, vec)
	if s.cfg.Metric == MetricCosine {
		normalize(stored)
	}

	s.graph.Add(hnsw.MakeNode(key, stored))
	s.idToKey[docID] = key
	s.keyToID[key] = docID
	s.docs[docID] = fields
	s.vectors[docID] = stored

	return nil
}

// search returns up to k live (non-tombstoned) results ranked by the
// segment's metric.
func (s *segment) search(query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.cfg.Dimensions {
		return nil, prismerrors.Backend(
			fmt.Sprintf("query dimension mismatch: expected %d, got %d", s.cfg.Dimensions, len(query)), nil)
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.cfg.Metric == MetricCosine {
		normalize(q)
	}

	// Oversample inside the graph itself to survive tombstone filtering:
	// ask for enough candidates that live results still fill k after
	// tombstoned hits are dropped, capped so a heavily deleted segment
	// doesn't force a full scan.
	oversampleK := k + int(s.tomb.GetCardinality())
	if maxK := k * 5; oversampleK > maxK {
		oversampleK = maxK
	}
	nodes := s.graph.Search(q, oversampleK)

	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		if s.tomb.Contains(node.Key) {
			continue
		}
		docID, ok := s.keyToID[node.Key]
		if !ok {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, Result{
			ID:     docID,
			Score:  distanceToScore(dist, s.cfg.Metric),
			Fields: s.docs[docID],
		})
		if len(results) >= k {
			break
		}
	}

	return results, nil
}

// tombstone marks doc_id as deleted. Returns true if the id was present.
func (s *segment) tombstone(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.idToKey[docID]
	if !ok {
		return false
	}

	s.tomb.Add(key)
	delete(s.idToKey, docID)
	delete(s.keyToID, key)
	delete(s.docs, docID)
	delete(s.vectors, docID)
	return true
}

func (s *segment) contains(docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idToKey[docID]
	return ok
}

// seal flips the segment to read-only. Irreversible.
func (s *segment) seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

func (s *segment) isSealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// isCompactionCandidate reports whether this segment is sealed and its
// tombstone ratio exceeds threshold.
func (s *segment) isCompactionCandidate(threshold float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.sealed {
		return false
	}
	total := uint64(s.graph.Len())
	if total == 0 {
		return false
	}
	return float64(s.tomb.GetCardinality())/float64(total) > threshold
}

func (s *segment) liveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idToKey)
}

func (s *segment) totalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

func (s *segment) deletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.tomb.GetCardinality())
}

// liveDocs returns the vectors and payloads of every non-tombstoned
// document, for compaction to rewrite into a new sealed segment.
func (s *segment) liveDocs() ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.idToKey))
	for docID := range s.idToKey {
		docs = append(docs, Document{ID: docID, Vector: s.vectors[docID], Fields: s.docs[docID]})
	}
	return docs, nil
}

// persist round-trips the ANN index, bimap, tombstones, payloads, and the
// sealed flag to dir/seg-<id>.{hnsw,meta}.
func (s *segment) persist(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return prismerrors.Storage("failed to create segment directory", err)
	}

	indexPath := filepath.Join(dir, fmt.Sprintf("seg-%d.hnsw", s.id))
	tmpIndexPath := indexPath + ".tmp"
	f, err := os.Create(tmpIndexPath)
	if err != nil {
		return prismerrors.Storage("failed to create segment index file", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpIndexPath)
		return prismerrors.Storage("failed to export segment graph", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return prismerrors.Storage("failed to close segment index file", err)
	}
	if err := os.Rename(tmpIndexPath, indexPath); err != nil {
		os.Remove(tmpIndexPath)
		return prismerrors.Storage("failed to rename segment index file", err)
	}

	metaPath := filepath.Join(dir, fmt.Sprintf("seg-%d.meta", s.id))
	tmpMetaPath := metaPath + ".tmp"
	mf, err := os.Create(tmpMetaPath)
	if err != nil {
		return prismerrors.Storage("failed to create segment metadata file", err)
	}
	snap := segmentSnapshot{
		ID:      s.id,
		IDToKey: s.idToKey,
		Docs:    s.docs,
		Vectors: s.vectors,
		Tomb:    s.tomb.ToArray(),
		NextKey: s.nextKey,
		Sealed:  s.sealed,
		Config:  s.cfg,
	}
	if err := gob.NewEncoder(mf).Encode(snap); err != nil {
		mf.Close()
		os.Remove(tmpMetaPath)
		return prismerrors.Storage("failed to encode segment metadata", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(tmpMetaPath)
		return prismerrors.Storage("failed to close segment metadata file", err)
	}
	return os.Rename(tmpMetaPath, metaPath)
}

// restore loads a segment previously written by persist.
func restoreSegment(dir string, id uint64) (*segment, error) {
	metaPath := filepath.Join(dir, fmt.Sprintf("seg-%d.meta", id))
	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, prismerrors.Storage("failed to open segment metadata", err)
	}
	defer mf.Close()

	var snap segmentSnapshot
	if err := gob.NewDecoder(mf).Decode(&snap); err != nil {
		return nil, prismerrors.Storage("failed to decode segment metadata", err)
	}

	s := newSegment(snap.ID, snap.Config)
	s.idToKey = snap.IDToKey
	s.docs = snap.Docs
	s.vectors = snap.Vectors
	s.nextKey = snap.NextKey
	s.sealed = snap.Sealed
	s.keyToID = make(map[uint32]string, len(snap.IDToKey))
	for docID, key := range snap.IDToKey {
		s.keyToID[key] = docID
	}
	tomb := roaring.NewBitmap()
	for _, k := range snap.Tomb {
		tomb.Add(k)
	}
	s.tomb = tomb

	indexPath := filepath.Join(dir, fmt.Sprintf("seg-%d.hnsw", id))
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, prismerrors.Storage("failed to open segment index file", err)
	}
	defer f.Close()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, prismerrors.Storage("failed to import segment graph", err)
	}

	return s, nil
}

func normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func dotDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

// distanceToScore converts the ANN index's distance into the metric's
// natural similarity score: cosine similarity, negative Euclidean distance,
// or dot product, per the segment contract.
func distanceToScore(distance float32, metric Metric) float32 {
	switch metric {
	case MetricEuclidean:
		return -distance
	case MetricDot:
		return -distance // dotDistance negated the product to fit hnsw's min-distance search
	default:
		return 1 - distance
	}
}


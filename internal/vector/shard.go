package vector

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

// shard owns exactly one active segment plus an ordered list of sealed
// segments for a single shard number of a collection's vector backend.
type shard struct {
	mu sync.RWMutex

	number        int
	cfg           Config
	active        *segment
	sealed        []*segment
	nextSegmentID uint64
}

func newShard(number int, cfg Config) *shard {
	s := &shard{number: number, cfg: cfg}
	s.active = newSegment(s.nextSegmentID, cfg)
	s.nextSegmentID++
	return s
}

// index tombstones any prior copy of docID across every segment, then
// appends the new vector to the active segment. A document therefore
// appears in exactly one non-tombstoned location at any time.
func (sh *shard) index(docID string, vec []float32, fields map[string]any) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.deleteLocked(docID)
	return sh.active.add(docID, vec, fields)
}

// search runs the oversampled query on every segment (active and sealed),
// merges by score descending, de-dups by doc id keeping the best score, and
// truncates to k.
func (sh *shard) search(query []float32, oversampledK int, finalK int) ([]Result, error) {
	sh.mu.RLock()
	segments := make([]*segment, 0, len(sh.sealed)+1)
	segments = append(segments, sh.active)
	segments = append(segments, sh.sealed...)
	sh.mu.RUnlock()

	best := make(map[string]Result)
	var firstErr error
	for _, seg := range segments {
		results, err := seg.search(query, oversampledK)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, r := range results {
			if existing, ok := best[r.ID]; !ok || r.Score > existing.Score {
				best[r.ID] = r
			}
		}
	}

	if len(best) == 0 && firstErr != nil {
		return nil, firstErr
	}

	merged := make([]Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > finalK {
		merged = merged[:finalK]
	}
	return merged, nil
}

// delete tombstones docID in every segment that holds it. Returns true if
// any segment matched.
func (sh *shard) delete(docID string) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.deleteLocked(docID)
}

func (sh *shard) deleteLocked(docID string) bool {
	found := false
	if sh.active.tombstone(docID) {
		found = true
	}
	for _, seg := range sh.sealed {
		if seg.tombstone(docID) {
			found = true
		}
	}
	return found
}

func (sh *shard) get(docID string) (map[string]any, bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if sh.active.contains(docID) {
		sh.active.mu.RLock()
		defer sh.active.mu.RUnlock()
		return sh.active.docs[docID], true
	}
	for _, seg := range sh.sealed {
		if seg.contains(docID) {
			seg.mu.RLock()
			defer seg.mu.RUnlock()
			return seg.docs[docID], true
		}
	}
	return nil, false
}

// sealActive seals the active segment (if it holds any documents) and
// starts a fresh one with a new segment id. No-op on an empty segment.
func (sh *shard) sealActive() {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.active.liveCount() == 0 {
		return
	}
	sh.active.seal()
	sh.sealed = append(sh.sealed, sh.active)
	sh.active = newSegment(sh.nextSegmentID, sh.cfg)
	sh.nextSegmentID++
}

func (sh *shard) liveCount() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	total := sh.active.liveCount()
	for _, seg := range sh.sealed {
		total += seg.liveCount()
	}
	return total
}

func (sh *shard) totalCount() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	total := sh.active.totalCount()
	for _, seg := range sh.sealed {
		total += seg.totalCount()
	}
	return total
}

func (sh *shard) deletedCount() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	total := sh.active.deletedCount()
	for _, seg := range sh.sealed {
		total += seg.deletedCount()
	}
	return total
}

// estimatedSize approximates on-disk footprint: one float32 per dimension
// per live vector, plus a fixed per-document bookkeeping overhead.
func (sh *shard) estimatedSize() int64 {
	const perDocOverhead = 64
	live := sh.liveCount()
	return int64(live) * (int64(sh.cfg.Dimensions)*4 + perDocOverhead)
}

// compact picks sealed segments whose tombstone ratio exceeds the
// configured threshold, rewrites their live documents into a single new
// sealed segment, and atomically swaps them out. Readers holding a
// reference to the retired segments are unaffected; they simply stop being
// included in subsequent searches once the swap completes.
func (sh *shard) compact() error {
	sh.mu.Lock()
	var candidates, keep []*segment
	for _, seg := range sh.sealed {
		if seg.isCompactionCandidate(sh.cfg.CompactionThreshold) {
			candidates = append(candidates, seg)
		} else {
			keep = append(keep, seg)
		}
	}
	sh.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}

	replacement := newSegment(0, sh.cfg) // id reassigned below under lock
	for _, seg := range candidates {
		docs, err := seg.liveDocs()
		if err != nil {
			return prismerrors.Storage("failed to read live docs for compaction", err)
		}
		for _, d := range docs {
			if err := replacement.add(d.ID, d.Vector, d.Fields); err != nil {
				return prismerrors.Backend("failed to rewrite document during compaction", err)
			}
		}
	}
	replacement.seal()

	sh.mu.Lock()
	replacement.id = sh.nextSegmentID
	sh.nextSegmentID++
	sh.sealed = append(keep, replacement)
	sh.mu.Unlock()

	return nil
}

// persist writes every segment (active and sealed) plus the shard's own
// bookkeeping to dir.
func (sh *shard) persist(dir string) error {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	shardDir := filepath.Join(dir, fmt.Sprintf("shard-%d", sh.number))
	if err := sh.active.persist(shardDir); err != nil {
		return err
	}
	for _, seg := range sh.sealed {
		if err := seg.persist(shardDir); err != nil {
			return err
		}
	}
	return nil
}

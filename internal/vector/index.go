package vector

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

// ShardedIndex routes documents to shards by a stable hash of their id and
// fans queries out across every shard concurrently, tolerating shard
// failures by marking the response partial instead of failing it, as long
// as at least one shard succeeds.
type ShardedIndex struct {
	cfg    Config
	shards []*shard
}

// NewShardedIndex creates an index with cfg.NumShards empty shards.
func NewShardedIndex(cfg Config) *ShardedIndex {
	shards := make([]*shard, cfg.NumShards)
	for i := range shards {
		shards[i] = newShard(i, cfg)
	}
	return &ShardedIndex{cfg: cfg, shards: shards}
}

// shardForDoc computes shard_for_doc(id, num_shards) = stable_hash(id) mod
// num_shards using FNV-1a, which is deterministic across processes and
// uniform enough that re-indexing always lands on the same shard.
func shardForDoc(id string, numShards int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum64() % uint64(numShards))
}

// Index groups docs by shardForDoc and forwards each group to its shard.
func (si *ShardedIndex) Index(ctx context.Context, docs []Document) error {
	groups := make(map[int][]Document)
	for _, d := range docs {
		sn := shardForDoc(d.ID, si.cfg.NumShards)
		groups[sn] = append(groups[sn], d)
	}

	g, _ := errgroup.WithContext(ctx)
	for sn, group := range groups {
		sn, group := sn, group
		g.Go(func() error {
			for _, d := range group {
				if err := si.shards[sn].index(d.ID, d.Vector, d.Fields); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Search asks every shard for ceil(k * ShardOversample) candidates
// concurrently, merges by score descending with id-dedup (highest score
// wins), and truncates to k. A shard failure does not fail the whole
// search; it marks the outcome partial as long as at least one shard
// succeeded.
func (si *ShardedIndex) Search(ctx context.Context, query []float32, k int) (*SearchOutcome, error) {
	oversample := si.cfg.ShardOversample
	if oversample <= 0 {
		oversample = 2.5
	}
	oversampledK := int(math.Ceil(float64(k) * oversample))

	type shardResult struct {
		results []Result
		err     error
	}
	resultsCh := make(chan shardResult, len(si.shards))

	var wg sync.WaitGroup
	for _, sh := range si.shards {
		sh := sh
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				resultsCh <- shardResult{err: ctx.Err()}
				return
			default:
			}
			results, err := sh.search(query, oversampledK, oversampledK)
			resultsCh <- shardResult{results: results, err: err}
		}()
	}
	wg.Wait()
	close(resultsCh)

	best := make(map[string]Result)
	isPartial := false
	succeeded := 0
	for r := range resultsCh {
		if r.err != nil {
			isPartial = true
			continue
		}
		succeeded++
		for _, res := range r.results {
			if existing, ok := best[res.ID]; !ok || res.Score > existing.Score {
				best[res.ID] = res
			}
		}
	}

	if succeeded == 0 {
		return nil, prismerrors.Backend("all shards failed during search", nil)
	}

	merged := make([]Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}

	return &SearchOutcome{Results: merged, IsPartial: isPartial}, nil
}

// Get performs a single-shard lookup, routing by the same hash as Search
// and Index use.
func (si *ShardedIndex) Get(ctx context.Context, id string) (*Document, bool) {
	sn := shardForDoc(id, si.cfg.NumShards)
	fields, ok := si.shards[sn].get(id)
	if !ok {
		return nil, false
	}
	return &Document{ID: id, Fields: fields}, true
}

// Delete groups ids by shard and fans the deletes out.
func (si *ShardedIndex) Delete(ctx context.Context, ids []string) error {
	groups := make(map[int][]string)
	for _, id := range ids {
		sn := shardForDoc(id, si.cfg.NumShards)
		groups[sn] = append(groups[sn], id)
	}

	g, _ := errgroup.WithContext(ctx)
	for sn, group := range groups {
		sn, group := sn, group
		g.Go(func() error {
			for _, id := range group {
				si.shards[sn].delete(id)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close is a no-op; shards hold no external resources beyond their
// in-memory segments, which are released to the garbage collector.
func (si *ShardedIndex) Close() error {
	return nil
}

// SealActiveSegments seals every shard's active segment, typically invoked
// on a schedule or before a snapshot so a full index persists a stable set
// of sealed segments.
func (si *ShardedIndex) SealActiveSegments() {
	for _, sh := range si.shards {
		sh.sealActive()
	}
}

// Compact runs compaction on every shard, retiring sealed segments whose
// tombstone ratio exceeds the configured threshold.
func (si *ShardedIndex) Compact(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, sh := range si.shards {
		sh := sh
		g.Go(sh.compact)
	}
	return g.Wait()
}

// Persist writes every shard's segments to dir.
func (si *ShardedIndex) Persist(dir string) error {
	for _, sh := range si.shards {
		if err := sh.persist(dir); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports aggregate counters used by collection manager's stats()
// and by placement's disk/index-size scoring inputs.
type Stats struct {
	LiveCount    int
	TotalCount   int
	DeletedCount int
	EstimatedSize int64
}

func (si *ShardedIndex) Stats() Stats {
	var s Stats
	for _, sh := range si.shards {
		s.LiveCount += sh.liveCount()
		s.TotalCount += sh.totalCount()
		s.DeletedCount += sh.deletedCount()
		s.EstimatedSize += sh.estimatedSize()
	}
	return s
}

var _ Index = (*ShardedIndex)(nil)

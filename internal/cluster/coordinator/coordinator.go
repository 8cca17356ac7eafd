// Package coordinator fans a search out across a collection's shards and
// merges the per-shard results into one ranked list. It is the caller the
// query router's own doc comments anticipate: routing decides where a
// query goes, the coordinator is what actually goes there and reassembles
// the answer.
package coordinator

import (
	"context"
	"sync"

	"github.com/prism-db/prism/internal/cluster/federation"
	"github.com/prism-db/prism/internal/cluster/router"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/hybrid"
	"github.com/prism-db/prism/internal/transport"
)

// RemoteSearcher is the subset of transport.Client a Coordinator needs,
// narrowed for testability.
type RemoteSearcher interface {
	Search(ctx context.Context, addr, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error)
}

var _ RemoteSearcher = (*transport.Client)(nil)

// LocalSearcher executes a query against this node's own collection.Manager,
// used when the router returns no remote targets (single-node deployment,
// or this node happens to hold every shard of the collection).
type LocalSearcher interface {
	Search(ctx context.Context, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error)
}

// Coordinator ties a Router's placement decision to RPC fan-out and a
// federation.ResultMerger's reassembly of the results.
type Coordinator struct {
	router *router.Router
	remote RemoteSearcher
	local  LocalSearcher
	merger *federation.ResultMerger
}

// New returns a Coordinator. local may be nil for a pure query-routing
// node that holds no shards of its own.
func New(r *router.Router, remote RemoteSearcher, local LocalSearcher, merger *federation.ResultMerger) *Coordinator {
	return &Coordinator{router: r, remote: remote, local: local, merger: merger}
}

// Search routes collectionName's query to every shard the router names,
// querying each concurrently, then merges the results under strategy (the
// merger's configured default if strategy is empty). A shard that errors
// contributes no hits and marks the merged result Partial, rather than
// failing the whole query.
func (c *Coordinator) Search(ctx context.Context, collectionName string, req collection.SearchRequest, strategy federation.Strategy, opts federation.Options) (*federation.MergedResult, error) {
	decision := c.router.Route(collectionName)

	if len(decision.Targets) == 0 {
		return c.searchLocal(ctx, collectionName, req, strategy, opts, decision.Partial)
	}

	results := make([]federation.ShardResult, len(decision.Targets))
	var wg sync.WaitGroup
	for i, target := range decision.Targets {
		wg.Add(1)
		go func(i int, target router.Target) {
			defer wg.Done()
			results[i] = c.searchShard(ctx, target, req)
		}(i, target)
	}
	wg.Wait()

	merged := c.merger.Merge(results, req.Limit, strategy, opts)
	merged.Partial = merged.Partial || decision.Partial
	return merged, nil
}

func (c *Coordinator) searchShard(ctx context.Context, target router.Target, req collection.SearchRequest) federation.ShardResult {
	outcome, err := c.remote.Search(ctx, target.NodeAddress, target.Collection, req)
	if err != nil {
		return federation.ShardResult{ShardID: target.ShardID, Err: err}
	}
	return federation.ShardResult{ShardID: target.ShardID, Results: toHits(outcome), Total: outcome.Total}
}

func (c *Coordinator) searchLocal(ctx context.Context, collectionName string, req collection.SearchRequest, strategy federation.Strategy, opts federation.Options, partial bool) (*federation.MergedResult, error) {
	if c.local == nil {
		merged := c.merger.Merge(nil, req.Limit, strategy, opts)
		merged.Partial = partial
		return merged, nil
	}

	outcome, err := c.local.Search(ctx, collectionName, req)
	if err != nil {
		return nil, err
	}

	merged := c.merger.Merge([]federation.ShardResult{{ShardID: "local", Results: toHits(outcome), Total: outcome.Total}}, req.Limit, strategy, opts)
	merged.Partial = merged.Partial || partial
	return merged, nil
}

func toHits(outcome *hybrid.Outcome) []federation.Hit {
	if outcome == nil {
		return nil
	}
	hits := make([]federation.Hit, len(outcome.Results))
	for i, r := range outcome.Results {
		hits[i] = federation.Hit{ID: r.ID, Score: r.Score, Fields: r.Fields}
	}
	return hits
}

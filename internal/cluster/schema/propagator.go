package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prism-db/prism/internal/cluster/state"
	prismerrors "github.com/prism-db/prism/internal/errors"
	"golang.org/x/sync/semaphore"
)

// Publisher pushes one schema version to a single remote node. It is the
// seam between the propagator and the RPC transport; production wiring
// supplies a function backed by the QUIC client, tests supply a stub.
type Publisher func(ctx context.Context, nodeID, address string, versioned VersionedSchema) error

// Config tunes one Propagator's fan-out behavior.
type Config struct {
	NodeTimeout         time.Duration
	MaxConcurrent       int
	MaxRetries          int
	RetryDelay          time.Duration
	RequireAllNodes     bool
	MinAcknowledgements int
}

// DefaultConfig mirrors the cluster's original propagation defaults: a
// 5s per-node timeout, 10-way concurrency, 3 retries a second apart, and
// success on just one acknowledgement (the registering node itself always
// counts as one).
func DefaultConfig() Config {
	return Config{
		NodeTimeout:         5 * time.Second,
		MaxConcurrent:       10,
		MaxRetries:          3,
		RetryDelay:          time.Second,
		RequireAllNodes:     false,
		MinAcknowledgements: 1,
	}
}

// Result is the outcome of one propagation attempt.
type Result struct {
	Version   Version
	Succeeded []string
	Failed    []string
	Success   bool
	Error     string
}

// Status tracks one in-flight or completed propagation, for callers that
// want to report progress rather than just a final Result.
type Status struct {
	Collection  string
	Version     Version
	Succeeded   []string
	Failed      []string
	Pending     []string
	Complete    bool
	Success     bool
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Propagator fans a newly registered schema version out to every other
// node in the cluster, with bounded concurrency and per-node retry.
type Propagator struct {
	publish Publisher
	cluster *state.Cluster
	nodeID  string
	cfg     Config
}

// NewPropagator returns a Propagator that uses publish to reach each
// remote node, reading cluster membership from cluster.
func NewPropagator(publish Publisher, cluster *state.Cluster, nodeID string, cfg Config) *Propagator {
	return &Propagator{publish: publish, cluster: cluster, nodeID: nodeID, cfg: cfg}
}

// Propagate pushes versioned to every node in the cluster other than
// nodeID, bounded to cfg.MaxConcurrent in flight at once. Every node is
// attempted regardless of another node's failure — a propagation fan-out
// gathers every outcome rather than aborting on the first error, the same
// partial-tolerance shape used by the sharded vector search fan-out and
// the hybrid coordinator's text/vector fan-out.
func (p *Propagator) Propagate(ctx context.Context, versioned VersionedSchema) Result {
	targets := p.targetNodes()
	if len(targets) == 0 {
		return Result{Version: versioned.Version, Succeeded: []string{p.nodeID}, Success: true}
	}

	sem := semaphore.NewWeighted(int64(maxConcurrent(p.cfg)))
	var mu sync.Mutex
	var wg sync.WaitGroup

	succeeded := []string{p.nodeID}
	failed := make([]string, 0)

	for _, node := range targets {
		node := node
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				failed = append(failed, node.Info.NodeID)
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			err := propagateToNode(ctx, p.publish, node.Info.NodeID, node.Info.Address, versioned, p.cfg)

			mu.Lock()
			if err != nil {
				failed = append(failed, node.Info.NodeID)
			} else {
				succeeded = append(succeeded, node.Info.NodeID)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	success := p.cfg.RequireAllNodes && len(failed) == 0
	if !p.cfg.RequireAllNodes {
		success = len(succeeded) >= max(p.cfg.MinAcknowledgements, 1)
	}

	if !success {
		return Result{
			Version: versioned.Version,
			Error: fmt.Sprintf("failed to propagate to required nodes: succeeded=%d failed=%d",
				len(succeeded), len(failed)),
		}
	}
	return Result{Version: versioned.Version, Succeeded: succeeded, Failed: failed, Success: true}
}

// PropagateWithStrategy dispatches on strategy: Immediate and Versioned
// both propagate right away (Versioned exists so the caller can log or
// gate on the distinction; nodes are expected to migrate gracefully on
// their own), Manual registers locally only and never calls out to the
// network.
func (p *Propagator) PropagateWithStrategy(ctx context.Context, versioned VersionedSchema, strategy PropagationStrategy) Result {
	switch strategy {
	case PropagationManual:
		return Result{Version: versioned.Version, Succeeded: []string{p.nodeID}, Success: true}
	default:
		return p.Propagate(ctx, versioned)
	}
}

// SyncWithNode pushes every schema the registry currently holds to a
// single node — used when that node has just joined or reconnected after
// a long partition. Returns the number that were successfully applied.
func (p *Propagator) SyncWithNode(ctx context.Context, registry *Registry, nodeID, address string) int {
	snap := registry.Snapshot()
	synced := 0
	for _, versioned := range snap.Schemas {
		if err := propagateToNode(ctx, p.publish, nodeID, address, versioned, p.cfg); err == nil {
			synced++
		}
	}
	return synced
}

func (p *Propagator) targetNodes() []state.NodeState {
	out := make([]state.NodeState, 0)
	for _, n := range p.cluster.Nodes() {
		if n.Info.NodeID != p.nodeID {
			out = append(out, n)
		}
	}
	return out
}

// propagateToNode calls publish with cfg.MaxRetries retries, waiting
// cfg.RetryDelay between attempts, bounding each attempt to
// cfg.NodeTimeout. Built on internal/errors.RetryWithResult with a flat
// (non-exponential) delay rather than a hand-rolled retry loop.
func propagateToNode(ctx context.Context, publish Publisher, nodeID, address string, versioned VersionedSchema, cfg Config) error {
	retryCfg := prismerrors.RetryConfig{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     cfg.RetryDelay,
		Multiplier:   1,
	}
	_, err := prismerrors.RetryWithResult(ctx, retryCfg, func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.NodeTimeout)
		defer cancel()
		return struct{}{}, publish(attemptCtx, nodeID, address, versioned)
	})
	if err != nil {
		return fmt.Errorf("propagating schema to %s: %w", nodeID, err)
	}
	return nil
}

func maxConcurrent(cfg Config) int {
	if cfg.MaxConcurrent <= 0 {
		return 1
	}
	return cfg.MaxConcurrent
}

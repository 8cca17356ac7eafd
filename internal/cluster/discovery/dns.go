package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Config tunes one DNSDiscovery instance.
type Config struct {
	// Name is either a SRV service name (e.g.
	// "_cluster._tcp.prism-headless.default.svc.cluster.local") or a bare
	// hostname to resolve via A/AAAA (e.g. a Kubernetes headless
	// service's "prism-headless.default.svc.cluster.local").
	Name string
	// RefreshInterval is how often the background loop re-resolves Name.
	RefreshInterval time.Duration
	// DefaultPort is used for every address returned by an A/AAAA lookup,
	// which carries no port information of its own. Ignored for SRV
	// lookups, which carry their own port per record.
	DefaultPort int
	// Resolver allows tests to substitute a fake net.Resolver; nil uses
	// net.DefaultResolver.
	Resolver *net.Resolver
}

// DNSDiscovery discovers nodes by resolving Config.Name, preferring SRV
// records (which carry priority, weight, and port per target) and falling
// back to A/AAAA records paired with Config.DefaultPort when the name has
// none — the same two-tier strategy the cluster's original discovery
// backend used, except SRV resolution here actually works: Go's net
// package resolves SRV natively, where the original's async runtime had
// no equivalent and fell back to A/AAAA unconditionally.
type DNSDiscovery struct {
	cfg Config

	mu      sync.RWMutex
	nodes   []Node
	events  chan Event
	stopCh  chan struct{}
	stopped bool
}

// New returns a DNSDiscovery ready to Start.
func New(cfg Config) *DNSDiscovery {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	return &DNSDiscovery{
		cfg:    cfg,
		events: make(chan Event, 64),
		stopCh: make(chan struct{}),
	}
}

// Start performs an initial resolution, then refreshes every
// Config.RefreshInterval until ctx is cancelled or Stop is called.
func (d *DNSDiscovery) Start(ctx context.Context) error {
	if err := d.Refresh(ctx); err != nil {
		d.emit(Event{Kind: RefreshComplete, Err: err, Timestamp: time.Now()})
	}

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.Stop()
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.emit(Event{Kind: RefreshComplete, Err: err, Timestamp: time.Now()})
			}
		}
	}
}

// Stop ends the refresh loop and closes the event channel.
func (d *DNSDiscovery) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	close(d.stopCh)
	close(d.events)
	return nil
}

// Events returns the channel of membership events.
func (d *DNSDiscovery) Events() <-chan Event {
	return d.events
}

// Nodes returns the most recently discovered membership snapshot.
func (d *DNSDiscovery) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// Refresh resolves Config.Name once, diffs the result against the current
// membership snapshot, and emits a NodeJoined/NodeLeft event per change
// plus one RefreshComplete summarizing the pass.
func (d *DNSDiscovery) Refresh(ctx context.Context) error {
	resolved, err := d.resolve(ctx)
	if err != nil {
		return err
	}
	sortNodes(resolved)

	d.mu.Lock()
	previous := d.nodes
	d.nodes = resolved
	stopped := d.stopped
	d.mu.Unlock()

	if stopped {
		return nil
	}

	joined, left := diffNodes(previous, resolved)
	for _, n := range joined {
		d.emit(Event{Kind: NodeJoined, Node: n, Timestamp: time.Now()})
	}
	for _, n := range left {
		d.emit(Event{Kind: NodeLeft, Node: n, Timestamp: time.Now()})
	}
	d.emit(Event{Kind: RefreshComplete, NodeCount: len(resolved), Timestamp: time.Now()})
	return nil
}

func (d *DNSDiscovery) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		// Slow consumer: drop rather than block the refresh loop, the
		// same non-blocking send the pack's file watcher uses for its
		// error channel.
	}
}

func (d *DNSDiscovery) resolve(ctx context.Context) ([]Node, error) {
	if nodes, err := d.resolveSRV(ctx); err == nil && len(nodes) > 0 {
		return nodes, nil
	}
	return d.resolveHost(ctx)
}

func (d *DNSDiscovery) resolveSRV(ctx context.Context) ([]Node, error) {
	service, proto, name, ok := splitSRVName(d.cfg.Name)
	if !ok {
		return nil, fmt.Errorf("%q is not a SRV-style name", d.cfg.Name)
	}

	_, records, err := d.cfg.Resolver.LookupSRV(ctx, service, proto, name)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %q: %w", d.cfg.Name, err)
	}

	nodes := make([]Node, 0, len(records))
	for _, rec := range records {
		addrs, err := d.cfg.Resolver.LookupHost(ctx, strings.TrimSuffix(rec.Target, "."))
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			nodes = append(nodes, Node{
				Address:  addr,
				Port:     int(rec.Port),
				Priority: rec.Priority,
				Weight:   rec.Weight,
			})
		}
	}
	return nodes, nil
}

func (d *DNSDiscovery) resolveHost(ctx context.Context) ([]Node, error) {
	addrs, err := d.cfg.Resolver.LookupHost(ctx, d.cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("A/AAAA lookup for %q: %w", d.cfg.Name, err)
	}

	nodes := make([]Node, 0, len(addrs))
	for _, addr := range addrs {
		nodes = append(nodes, Node{Address: addr, Port: d.cfg.DefaultPort})
	}
	return nodes, nil
}

// splitSRVName recognizes "_service._proto.name" SRV-style names and
// splits them into LookupSRV's three arguments; returns ok=false for a
// bare hostname.
func splitSRVName(name string) (service, proto, host string, ok bool) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	if !strings.HasPrefix(parts[0], "_") || !strings.HasPrefix(parts[1], "_") {
		return "", "", "", false
	}
	return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2], true
}

// Package discovery finds other cluster nodes via DNS — SRV records when
// the zone publishes them, A/AAAA records otherwise — and reports
// membership changes as a stream of events, the same poll-and-diff shape
// as a filesystem watcher, applied to DNS instead of a directory.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"
)

// EventKind names what changed between two discovery refreshes.
type EventKind int

const (
	NodeJoined EventKind = iota
	NodeLeft
	RefreshComplete
)

func (k EventKind) String() string {
	switch k {
	case NodeJoined:
		return "NODE_JOINED"
	case NodeLeft:
		return "NODE_LEFT"
	case RefreshComplete:
		return "REFRESH_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Node is one cluster member discovered via DNS.
type Node struct {
	Address  string
	Port     int
	Priority uint16
	Weight   uint16
}

// HostPort renders the node as a dial-able "host:port" string.
func (n Node) HostPort() string {
	return net.JoinHostPort(n.Address, fmt.Sprintf("%d", n.Port))
}

// Event is one membership change or refresh cycle completion.
type Event struct {
	Kind      EventKind
	Node      Node
	NodeCount int
	Err       error
	Timestamp time.Time
}

// Discovery finds cluster nodes and reports membership changes.
type Discovery interface {
	// Start begins refreshing on Config.RefreshInterval until ctx is
	// cancelled or Stop is called. Blocks until the loop exits.
	Start(ctx context.Context) error
	// Stop ends the refresh loop. Safe to call multiple times.
	Stop() error
	// Events returns the channel of membership events. Closed when the
	// discovery loop stops.
	Events() <-chan Event
	// Nodes returns the most recently discovered membership snapshot.
	Nodes() []Node
	// Refresh performs one discovery pass immediately, outside the
	// regular interval.
	Refresh(ctx context.Context) error
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Address != nodes[j].Address {
			return nodes[i].Address < nodes[j].Address
		}
		return nodes[i].Port < nodes[j].Port
	})
}

func diffNodes(old, updated []Node) (joined, left []Node) {
	oldSet := make(map[string]Node, len(old))
	for _, n := range old {
		oldSet[n.HostPort()] = n
	}
	newSet := make(map[string]Node, len(updated))
	for _, n := range updated {
		newSet[n.HostPort()] = n
	}

	for key, n := range newSet {
		if _, ok := oldSet[key]; !ok {
			joined = append(joined, n)
		}
	}
	for key, n := range oldSet {
		if _, ok := newSet[key]; !ok {
			left = append(left, n)
		}
	}
	return joined, left
}

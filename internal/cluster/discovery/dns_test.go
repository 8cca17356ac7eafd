package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDefaults(t *testing.T) {
	d := New(Config{Name: "localhost"})
	assert.Equal(t, 30*time.Second, d.cfg.RefreshInterval)
	assert.NotNil(t, d.cfg.Resolver)
}

func TestRefresh_ResolvesLocalhostViaAAAA(t *testing.T) {
	d := New(Config{Name: "localhost", DefaultPort: 9080})

	err := d.Refresh(context.Background())
	require.NoError(t, err)

	nodes := d.Nodes()
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, 9080, n.Port)
	}
}

func TestRefresh_EmitsJoinedEventsOnFirstPass(t *testing.T) {
	d := New(Config{Name: "localhost", DefaultPort: 9080})

	require.NoError(t, d.Refresh(context.Background()))

	var sawJoined, sawComplete bool
	draining := true
	for draining {
		select {
		case ev := <-d.Events():
			if ev.Kind == NodeJoined {
				sawJoined = true
			}
			if ev.Kind == RefreshComplete {
				sawComplete = true
			}
		default:
			draining = false
		}
	}
	assert.True(t, sawJoined)
	assert.True(t, sawComplete)
}

func TestRefresh_UnchangedMembershipEmitsOnlyRefreshComplete(t *testing.T) {
	d := New(Config{Name: "localhost", DefaultPort: 9080})
	require.NoError(t, d.Refresh(context.Background()))
	drain(d)

	require.NoError(t, d.Refresh(context.Background()))

	var joinedOrLeft int
	draining := true
	for draining {
		select {
		case ev := <-d.Events():
			if ev.Kind == NodeJoined || ev.Kind == NodeLeft {
				joinedOrLeft++
			}
		default:
			draining = false
		}
	}
	assert.Zero(t, joinedOrLeft)
}

func TestStop_IsIdempotentAndClosesEvents(t *testing.T) {
	d := New(Config{Name: "localhost"})
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())

	_, open := <-d.Events()
	assert.False(t, open)
}

func drain(d *DNSDiscovery) {
	draining := true
	for draining {
		select {
		case <-d.Events():
		default:
			draining = false
		}
	}
}

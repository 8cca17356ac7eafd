package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffNodes_DetectsJoinedAndLeft(t *testing.T) {
	old := []Node{{Address: "10.0.0.1", Port: 9080}, {Address: "10.0.0.2", Port: 9080}}
	updated := []Node{{Address: "10.0.0.2", Port: 9080}, {Address: "10.0.0.3", Port: 9080}}

	joined, left := diffNodes(old, updated)

	if assert.Len(t, joined, 1) {
		assert.Equal(t, "10.0.0.3", joined[0].Address)
	}
	if assert.Len(t, left, 1) {
		assert.Equal(t, "10.0.0.1", left[0].Address)
	}
}

func TestDiffNodes_NoChangeEmitsNothing(t *testing.T) {
	nodes := []Node{{Address: "10.0.0.1", Port: 9080}}
	joined, left := diffNodes(nodes, nodes)
	assert.Empty(t, joined)
	assert.Empty(t, left)
}

func TestSortNodes_OrdersByAddressThenPort(t *testing.T) {
	nodes := []Node{
		{Address: "10.0.0.2", Port: 9081},
		{Address: "10.0.0.1", Port: 9082},
		{Address: "10.0.0.1", Port: 9080},
	}
	sortNodes(nodes)

	assert.Equal(t, "10.0.0.1", nodes[0].Address)
	assert.Equal(t, 9080, nodes[0].Port)
	assert.Equal(t, "10.0.0.1", nodes[1].Address)
	assert.Equal(t, 9082, nodes[1].Port)
	assert.Equal(t, "10.0.0.2", nodes[2].Address)
}

func TestSplitSRVName_RecognizesSRVStyleName(t *testing.T) {
	service, proto, host, ok := splitSRVName("_cluster._tcp.prism-headless.default.svc.cluster.local")
	assert.True(t, ok)
	assert.Equal(t, "cluster", service)
	assert.Equal(t, "tcp", proto)
	assert.Equal(t, "prism-headless.default.svc.cluster.local", host)
}

func TestSplitSRVName_RejectsBareHostname(t *testing.T) {
	_, _, _, ok := splitSRVName("prism-headless.default.svc.cluster.local")
	assert.False(t, ok)
}

func TestNode_HostPort(t *testing.T) {
	n := Node{Address: "10.0.0.1", Port: 9080}
	assert.Equal(t, "10.0.0.1:9080", n.HostPort())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "NODE_JOINED", NodeJoined.String())
	assert.Equal(t, "NODE_LEFT", NodeLeft.String())
	assert.Equal(t, "REFRESH_COMPLETE", RefreshComplete.String())
}

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prismerrors "github.com/prism-db/prism/internal/errors"
)

func TestClient_ConnectionOpensBreakerAfterRepeatedDialFailures(t *testing.T) {
	c := NewClient(ClientConfig{
		InsecureSkipVerify: true,
		ConnectTimeout:     20 * time.Millisecond,
		RequestTimeout:     20 * time.Millisecond,
	})
	defer c.Close()

	addr := "127.0.0.1:1"
	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = c.connection(context.Background(), addr)
		require.Error(t, lastErr)
	}

	cb := c.breakerFor(addr)
	assert.Equal(t, prismerrors.StateOpen, cb.State())

	start := time.Now()
	_, err := c.connection(context.Background(), addr)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, prismerrors.ErrCircuitOpen)
	assert.Less(t, elapsed, c.cfg.ConnectTimeout, "an open breaker must fail fast without dialing")
}

func TestClient_BreakerForReturnsSameInstancePerAddress(t *testing.T) {
	c := NewClient(DefaultClientConfig())
	defer c.Close()

	a := c.breakerFor("10.0.0.1:9080")
	b := c.breakerFor("10.0.0.1:9080")
	assert.Same(t, a, b)

	other := c.breakerFor("10.0.0.2:9080")
	assert.NotSame(t, a, other)
}

func TestClient_CallFailsFastOnceBreakerOpen(t *testing.T) {
	c := NewClient(ClientConfig{
		InsecureSkipVerify: true,
		ConnectTimeout:     20 * time.Millisecond,
		RequestTimeout:     20 * time.Millisecond,
	})
	defer c.Close()

	addr := "127.0.0.1:1"
	for i := 0; i < 5; i++ {
		_, err := c.call(context.Background(), addr, MethodPing, struct{}{})
		require.Error(t, err)
	}

	_, err := c.call(context.Background(), addr, MethodPing, struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, prismerrors.ErrCircuitOpen))
}

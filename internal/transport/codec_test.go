package transport

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := envelope{Method: "ping", Body: []byte("hello")}

	require.NoError(t, writeEnvelope(&buf, in))

	out, err := readEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, in.Method, out.Method)
	assert.Equal(t, in.Body, out.Body)
}

func TestEnvelope_CarriesError(t *testing.T) {
	var buf bytes.Buffer
	in := envelope{Method: "get", Err: "collection not found"}

	require.NoError(t, writeEnvelope(&buf, in))

	out, err := readEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "collection not found", out.Err)
}

func TestEncodeDecodeBody_RoundTrip(t *testing.T) {
	type sample struct {
		Name  string
		Count int
	}
	in := sample{Name: "products", Count: 3}

	body, err := encodeBody(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, decodeBody(body, &out))
	assert.Equal(t, in, out)
}

func TestReadEnvelope_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	lenPrefix[0] = 0xFF
	lenPrefix[1] = 0xFF
	lenPrefix[2] = 0xFF
	lenPrefix[3] = 0xFF
	buf.Write(lenPrefix[:])

	_, err := readEnvelope(bufio.NewReader(&buf))
	assert.Error(t, err)
}

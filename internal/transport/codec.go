// Package transport carries RPC calls between cluster nodes over QUIC: one
// stream per call, a length-prefixed gob envelope as the wire format, and a
// small client-side connection pool keyed by node address. It is the seam
// the schema propagator and the federation merger's shard fan-out call into
// to reach a remote node.
package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

const maxFrameBytes = 64 << 20 // 64MiB, generous for a batch index/search payload

// Document fields and schema content travel as map[string]any — gob
// requires every concrete type that can appear inside an interface value
// to be registered up front, so the shapes YAML/JSON decoding actually
// produces are registered here.
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register([]float32{})
	gob.Register([]float64{})
	gob.Register(int64(0))
	gob.Register(float64(0))
}

// envelope is one RPC request or response frame on the wire.
type envelope struct {
	Method string
	Err    string
	Body   []byte
}

// writeEnvelope writes env as a 4-byte big-endian length prefix followed by
// its gob encoding.
func writeEnvelope(w io.Writer, env envelope) error {
	buf, err := gobEncode(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if len(buf) > maxFrameBytes {
		return fmt.Errorf("envelope too large: %d bytes", len(buf))
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// readEnvelope reads one length-prefixed gob-encoded envelope from r.
func readEnvelope(r *bufio.Reader) (envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return envelope{}, fmt.Errorf("frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return envelope{}, fmt.Errorf("reading frame body: %w", err)
	}
	var env envelope
	if err := gobDecode(buf, &env); err != nil {
		return envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// encodeBody gob-encodes v for placement in an envelope's Body.
func encodeBody(v any) ([]byte, error) {
	return gobEncode(v)
}

// decodeBody gob-decodes an envelope's Body into v.
func decodeBody(body []byte, v any) error {
	return gobDecode(body, v)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

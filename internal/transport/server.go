package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/quic-go/quic-go"
)

// ServerConfig tunes one node's QUIC listener.
type ServerConfig struct {
	Address string
	NodeID  string
}

// Server accepts QUIC connections from other cluster nodes and dispatches
// each bidirectional stream's single RPC to Service.
type Server struct {
	cfg      ServerConfig
	service  Service
	logger   *slog.Logger
	listener *quic.Listener
}

// NewServer wires svc as the handler for every incoming RPC.
func NewServer(cfg ServerConfig, svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, service: svc, logger: logger}
}

// Serve listens on cfg.Address until ctx is cancelled, accepting one
// goroutine per connection and one goroutine per stream within it — the
// same fan-out-per-connection shape the cluster's original QUIC server
// used, adapted from tarpc's channel-per-connection model to a direct
// envelope dispatch since Go has no tarpc equivalent in the example pack.
func (s *Server) Serve(ctx context.Context) error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return fmt.Errorf("building server tls config: %w", err)
	}

	listener, err := quic.ListenAddr(s.cfg.Address, tlsConf, &quic.Config{})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address, err)
	}
	s.listener = listener
	s.logger.Info("cluster transport listening", "address", s.cfg.Address, "node_id", s.cfg.NodeID)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		go s.serveConnection(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConnection(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			s.logger.Debug("connection closed", "remote", remote, "error", err)
			return
		}
		go s.serveStream(ctx, stream)
	}
}

func (s *Server) serveStream(ctx context.Context, stream *quic.Stream) {
	defer stream.Close()
	reader := bufio.NewReader(stream)

	req, err := readEnvelope(reader)
	if err != nil {
		s.logger.Debug("reading request envelope", "error", err)
		return
	}

	resp := s.dispatch(ctx, req)
	if err := writeEnvelope(stream, resp); err != nil {
		s.logger.Debug("writing response envelope", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req envelope) envelope {
	switch Method(req.Method) {
	case MethodIndex:
		var in IndexRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		if err := s.service.Index(ctx, in.Collection, in.Docs); err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, IndexResponse{})

	case MethodSearch:
		var in SearchRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		outcome, err := s.service.Search(ctx, in.Collection, in.Query)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, SearchResponse{Outcome: *outcome})

	case MethodGet:
		var in GetRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		doc, found, err := s.service.Get(ctx, in.Collection, in.ID)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, GetResponse{Doc: doc, Found: found})

	case MethodDelete:
		var in DeleteRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		if err := s.service.Delete(ctx, in.Collection, in.IDs); err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, DeleteResponse{})

	case MethodStats:
		var in StatsRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		stats, err := s.service.Stats(ctx, in.Collection)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, StatsResponse{Stats: *stats})

	case MethodListCollect:
		names, err := s.service.ListCollections(ctx)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, ListCollectionsResponse{Collections: names})

	case MethodNodeInfo:
		info, err := s.service.NodeInfo(ctx)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, NodeInfoResponse{Info: info})

	case MethodPing:
		return okEnvelope(req.Method, PingResponse{NodeID: s.cfg.NodeID})

	case MethodApplySchema:
		var in ApplySchemaRequest
		if err := decodeBody(req.Body, &in); err != nil {
			return errEnvelope(req.Method, err)
		}
		applied, err := s.service.ApplySchema(ctx, in.Schema)
		if err != nil {
			return errEnvelope(req.Method, err)
		}
		return okEnvelope(req.Method, ApplySchemaResponse{Applied: applied})

	default:
		return errEnvelope(req.Method, fmt.Errorf("unknown method %q", req.Method))
	}
}

func okEnvelope(method string, body any) envelope {
	buf, err := encodeBody(body)
	if err != nil {
		return errEnvelope(method, err)
	}
	return envelope{Method: method, Body: buf}
}

func errEnvelope(method string, err error) envelope {
	return envelope{Method: method, Err: err.Error()}
}

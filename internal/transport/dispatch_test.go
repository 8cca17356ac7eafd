package transport

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/schema"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/hybrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	docs      map[string]collection.Document
	nodeInfo  placement.NodeInfo
	applied   bool
	failIndex bool
}

func newFakeService() *fakeService {
	return &fakeService{docs: make(map[string]collection.Document)}
}

func (f *fakeService) Index(ctx context.Context, collectionName string, docs []collection.Document) error {
	if f.failIndex {
		return fmt.Errorf("index rejected")
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeService) Search(ctx context.Context, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error) {
	return &hybrid.Outcome{Total: len(f.docs)}, nil
}

func (f *fakeService) Get(ctx context.Context, collectionName, id string) (*collection.Document, bool, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (f *fakeService) Delete(ctx context.Context, collectionName string, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeService) Stats(ctx context.Context, collectionName string) (*collection.BackendStats, error) {
	return &collection.BackendStats{DocumentCount: len(f.docs)}, nil
}

func (f *fakeService) ListCollections(ctx context.Context) ([]string, error) {
	return []string{"products"}, nil
}

func (f *fakeService) NodeInfo(ctx context.Context) (placement.NodeInfo, error) {
	return f.nodeInfo, nil
}

func (f *fakeService) ApplySchema(ctx context.Context, versioned schema.VersionedSchema) (bool, error) {
	return f.applied, nil
}

func newTestServer(svc Service) *Server {
	return NewServer(ServerConfig{Address: "127.0.0.1:0", NodeID: "node-1"}, svc, slog.Default())
}

func TestDispatch_IndexThenGet(t *testing.T) {
	svc := newFakeService()
	s := newTestServer(svc)

	indexBody, err := encodeBody(IndexRequest{
		Collection: "products",
		Docs:       []collection.Document{{ID: "p1", Fields: map[string]any{"name": "widget"}}},
	})
	require.NoError(t, err)

	resp := s.dispatch(context.Background(), envelope{Method: string(MethodIndex), Body: indexBody})
	assert.Empty(t, resp.Err)

	getBody, err := encodeBody(GetRequest{Collection: "products", ID: "p1"})
	require.NoError(t, err)

	resp = s.dispatch(context.Background(), envelope{Method: string(MethodGet), Body: getBody})
	require.Empty(t, resp.Err)

	var out GetResponse
	require.NoError(t, decodeBody(resp.Body, &out))
	assert.True(t, out.Found)
	assert.Equal(t, "p1", out.Doc.ID)
}

func TestDispatch_IndexFailurePropagatesError(t *testing.T) {
	svc := newFakeService()
	svc.failIndex = true
	s := newTestServer(svc)

	body, err := encodeBody(IndexRequest{Collection: "products", Docs: nil})
	require.NoError(t, err)

	resp := s.dispatch(context.Background(), envelope{Method: string(MethodIndex), Body: body})
	assert.NotEmpty(t, resp.Err)
}

func TestDispatch_Ping(t *testing.T) {
	s := newTestServer(newFakeService())

	resp := s.dispatch(context.Background(), envelope{Method: string(MethodPing)})
	require.Empty(t, resp.Err)

	var out PingResponse
	require.NoError(t, decodeBody(resp.Body, &out))
	assert.Equal(t, "node-1", out.NodeID)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	s := newTestServer(newFakeService())

	resp := s.dispatch(context.Background(), envelope{Method: "bogus"})
	assert.NotEmpty(t, resp.Err)
}

func TestDispatch_ApplySchema(t *testing.T) {
	svc := newFakeService()
	svc.applied = true
	s := newTestServer(svc)

	versioned := schema.NewVersionedSchema("products", schema.Version(2), map[string]any{}, "node-2")
	body, err := encodeBody(ApplySchemaRequest{Schema: versioned})
	require.NoError(t, err)

	resp := s.dispatch(context.Background(), envelope{Method: string(MethodApplySchema), Body: body})
	require.Empty(t, resp.Err)

	var out ApplySchemaResponse
	require.NoError(t, decodeBody(resp.Body, &out))
	assert.True(t, out.Applied)
}

func TestDispatch_ListCollectionsAndStats(t *testing.T) {
	svc := newFakeService()
	svc.docs["p1"] = collection.Document{ID: "p1"}
	s := newTestServer(svc)

	resp := s.dispatch(context.Background(), envelope{Method: string(MethodListCollect)})
	require.Empty(t, resp.Err)
	var list ListCollectionsResponse
	require.NoError(t, decodeBody(resp.Body, &list))
	assert.Equal(t, []string{"products"}, list.Collections)

	statsBody, err := encodeBody(StatsRequest{Collection: "products"})
	require.NoError(t, err)
	resp = s.dispatch(context.Background(), envelope{Method: string(MethodStats), Body: statsBody})
	require.Empty(t, resp.Err)
	var stats StatsResponse
	require.NoError(t, decodeBody(resp.Body, &stats))
	assert.Equal(t, 1, stats.Stats.DocumentCount)
}

package transport

import (
	"context"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/schema"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/hybrid"
)

// Method names one RPC the server dispatches on. Every exported Service
// method has a corresponding constant.
type Method string

const (
	MethodIndex       Method = "index"
	MethodSearch      Method = "search"
	MethodGet         Method = "get"
	MethodDelete      Method = "delete"
	MethodStats       Method = "stats"
	MethodListCollect Method = "list_collections"
	MethodNodeInfo    Method = "node_info"
	MethodPing        Method = "ping"
	MethodApplySchema Method = "apply_schema"
)

// IndexRequest/IndexResponse carry collection.Manager.Index over the wire.
type IndexRequest struct {
	Collection string
	Docs       []collection.Document
}
type IndexResponse struct{}

// SearchRequest/SearchResponse carry collection.Manager.Search.
type SearchRequest struct {
	Collection string
	Query      collection.SearchRequest
}
type SearchResponse struct {
	Outcome hybrid.Outcome
}

// GetRequest/GetResponse carry collection.Manager.Get.
type GetRequest struct {
	Collection string
	ID         string
}
type GetResponse struct {
	Doc   *collection.Document
	Found bool
}

// DeleteRequest/DeleteResponse carry collection.Manager.Delete.
type DeleteRequest struct {
	Collection string
	IDs        []string
}
type DeleteResponse struct{}

// StatsRequest/StatsResponse carry collection.Manager.Stats.
type StatsRequest struct {
	Collection string
}
type StatsResponse struct {
	Stats collection.BackendStats
}

// ListCollectionsResponse carries collection.Manager.ListCollections.
type ListCollectionsResponse struct {
	Collections []string
}

// NodeInfoResponse carries a node's current placement.NodeInfo.
type NodeInfoResponse struct {
	Info placement.NodeInfo
}

// PingResponse is a trivial liveness probe response.
type PingResponse struct {
	NodeID string
}

// ApplySchemaRequest carries a propagated schema version from
// schema.Propagator to a remote node's registry.
type ApplySchemaRequest struct {
	Schema schema.VersionedSchema
}
type ApplySchemaResponse struct {
	Applied bool
}

// Service is the set of operations a node exposes to the rest of the
// cluster. ManagerService (adapter.go) implements it, delegating the
// data-plane methods to a *collection.Manager and NodeInfo/ApplySchema to a
// NodeInfoProvider and a *schema.Registry; the node process (cmd/prismd)
// builds one.
type Service interface {
	Index(ctx context.Context, collectionName string, docs []collection.Document) error
	Search(ctx context.Context, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error)
	Get(ctx context.Context, collectionName, id string) (*collection.Document, bool, error)
	Delete(ctx context.Context, collectionName string, ids []string) error
	Stats(ctx context.Context, collectionName string) (*collection.BackendStats, error)
	ListCollections(ctx context.Context) ([]string, error)
	NodeInfo(ctx context.Context) (placement.NodeInfo, error)
	ApplySchema(ctx context.Context, versioned schema.VersionedSchema) (bool, error)
}

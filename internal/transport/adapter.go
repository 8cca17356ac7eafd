package transport

import (
	"context"

	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/schema"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/hybrid"
)

// NodeInfoProvider supplies a node's current placement.NodeInfo snapshot —
// implemented by the node process, which is the only thing that knows its
// own disk/shard-count/topology state.
type NodeInfoProvider func() placement.NodeInfo

// ManagerService adapts *collection.Manager and *schema.Registry into the
// Service interface the RPC server dispatches against. It is the thin glue
// between the data-plane (collections, search) and control-plane (schema,
// placement) packages that the cluster node process (cmd/prismd) wires
// together; neither collection.Manager nor schema.Registry depends on
// transport directly.
type ManagerService struct {
	Manager      *collection.Manager
	Registry     *schema.Registry
	InfoProvider NodeInfoProvider
}

func (s *ManagerService) Index(ctx context.Context, collectionName string, docs []collection.Document) error {
	return s.Manager.Index(ctx, collectionName, docs)
}

func (s *ManagerService) Search(ctx context.Context, collectionName string, req collection.SearchRequest) (*hybrid.Outcome, error) {
	return s.Manager.Search(ctx, collectionName, req)
}

func (s *ManagerService) Get(ctx context.Context, collectionName, id string) (*collection.Document, bool, error) {
	return s.Manager.Get(ctx, collectionName, id)
}

func (s *ManagerService) Delete(ctx context.Context, collectionName string, ids []string) error {
	return s.Manager.Delete(ctx, collectionName, ids)
}

func (s *ManagerService) Stats(ctx context.Context, collectionName string) (*collection.BackendStats, error) {
	return s.Manager.Stats(collectionName)
}

func (s *ManagerService) ListCollections(ctx context.Context) ([]string, error) {
	return s.Manager.ListCollections(), nil
}

func (s *ManagerService) NodeInfo(ctx context.Context) (placement.NodeInfo, error) {
	return s.InfoProvider(), nil
}

// ApplySchema installs a remotely propagated schema version into this
// node's registry, reporting whether it was newer than what this node
// already held.
func (s *ManagerService) ApplySchema(ctx context.Context, versioned schema.VersionedSchema) (bool, error) {
	return s.Registry.ApplyRemoteSchema(versioned), nil
}

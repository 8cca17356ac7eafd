package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prism-db/prism/internal/cluster/discovery"
	"github.com/prism-db/prism/internal/cluster/placement"
	"github.com/prism-db/prism/internal/cluster/schema"
	"github.com/prism-db/prism/internal/cluster/state"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/config"
	"github.com/prism-db/prism/internal/logging"
	"github.com/prism-db/prism/internal/storage"
	"github.com/prism-db/prism/internal/transport"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run this node, serving RPCs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dataDir)
		},
	}
}

func runServe(ctx context.Context, dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.WriteToStderr,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	node, err := bootstrapNode(cfg, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- node.server.Serve(ctx) }()

	if node.discovery != nil {
		go node.watchDiscovery(ctx)
		go func() {
			if err := node.discovery.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("discovery loop exited", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("prismd node started",
		slog.String("node_id", cfg.Node.ID),
		slog.String("address", cfg.Node.Address))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		_ = node.server.Close()
		return nil
	case err := <-serveErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}
}

// node bundles every long-lived component a running prismd process owns,
// so serve and its tests can construct and tear one down as a unit.
type node struct {
	cfg          *config.Config
	manager      *collection.Manager
	registry     *schema.Registry
	cluster      *state.Cluster
	clusterStore *storage.ClusterStore
	schemaStore  *storage.SchemaStore
	client       *transport.Client
	server       *transport.Server
	propagator   *schema.Propagator
	discovery    *discovery.DNSDiscovery
}

func bootstrapNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	manager, err := loadManager(cfg.Collections.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading collections: %w", err)
	}

	cluster := state.NewWithHeartbeatTimeout(time.Duration(cfg.Cluster.HeartbeatTimeoutSecs) * time.Second)
	selfInfo := placement.NodeInfo{
		NodeID:  cfg.Node.ID,
		Address: cfg.Node.Address,
		Healthy: true,
	}
	cluster.RegisterNode(selfInfo)

	clusterStore, err := storage.NewClusterStore(filepath.Join(cfg.Collections.Dir, ".cluster"))
	if err != nil {
		return nil, fmt.Errorf("opening cluster store: %w", err)
	}
	if err := clusterStore.RestoreInto(cluster); err != nil {
		return nil, fmt.Errorf("restoring cluster state: %w", err)
	}
	cluster.RegisterNode(selfInfo)

	registry := schema.NewRegistry(cfg.Node.ID)
	schemaStore, err := storage.NewSchemaStore(filepath.Join(cfg.Collections.Dir, ".schema", "history.db"), 0)
	if err != nil {
		return nil, fmt.Errorf("opening schema store: %w", err)
	}
	restoreSchemaHistory(manager, registry, schemaStore)

	client := transport.NewClient(transport.ClientConfig{
		InsecureSkipVerify: true,
		ConnectTimeout:     time.Duration(cfg.Cluster.ConnectTimeoutMS) * time.Millisecond,
		RequestTimeout:     time.Duration(cfg.Cluster.RequestTimeoutMS) * time.Millisecond,
	})

	svc := &transport.ManagerService{
		Manager:      manager,
		Registry:     registry,
		InfoProvider: func() placement.NodeInfo { return selfInfo },
	}
	server := transport.NewServer(transport.ServerConfig{Address: cfg.Node.Address, NodeID: cfg.Node.ID}, svc, logger)

	propagator := schema.NewPropagator(client.Publisher(), cluster, cfg.Node.ID, schema.Config{
		NodeTimeout:         time.Duration(cfg.Propagation.NodeTimeoutMS) * time.Millisecond,
		MaxConcurrent:       cfg.Propagation.MaxConcurrent,
		MaxRetries:          cfg.Propagation.MaxRetries,
		RetryDelay:          time.Duration(cfg.Propagation.RetryDelayMS) * time.Millisecond,
		RequireAllNodes:     cfg.Propagation.RequireAllNodes,
		MinAcknowledgements: cfg.Propagation.MinAcknowledgements,
	})

	n := &node{
		cfg:          cfg,
		manager:      manager,
		registry:     registry,
		cluster:      cluster,
		clusterStore: clusterStore,
		schemaStore:  schemaStore,
		client:       client,
		server:       server,
		propagator:   propagator,
	}

	if cfg.Discovery.DNSName != "" {
		n.discovery = discovery.New(discovery.Config{
			Name:            cfg.Discovery.DNSName,
			RefreshInterval: time.Duration(cfg.Discovery.RefreshIntervalSecs) * time.Second,
			DefaultPort:     cfg.Discovery.DefaultPort,
		})
	}

	return n, nil
}

func loadManager(dir string) (*collection.Manager, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return collection.NewManager(), nil
	}
	return collection.NewManagerFromDir(dir)
}

// restoreSchemaHistory seeds registry with each collection's latest
// persisted schema, best-effort: a store with no history for a
// collection (first boot) is not an error.
func restoreSchemaHistory(manager *collection.Manager, registry *schema.Registry, store *storage.SchemaStore) {
	for _, name := range manager.ListCollections() {
		history, err := store.History(name)
		if err != nil || len(history) == 0 {
			continue
		}
		registry.ApplyRemoteSchema(history[len(history)-1])
	}
}

// watchDiscovery applies DNS membership events to the cluster's node
// registry as nodes join or leave, and persists the resulting state so a
// restart doesn't need a full rediscovery pass to rebuild it.
func (n *node) watchDiscovery(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.discovery.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case discovery.NodeJoined:
				n.cluster.RegisterNode(placement.NodeInfo{
					NodeID:  ev.Node.HostPort(),
					Address: ev.Node.HostPort(),
					Healthy: true,
				})
			case discovery.NodeLeft:
				n.cluster.RemoveNode(ev.Node.HostPort())
			}
			if err := n.clusterStore.Save(n.cluster.Snapshot()); err != nil {
				slog.Warn("failed to persist cluster snapshot", slog.String("error", err.Error()))
			}
		}
	}
}

func (n *node) Close() error {
	if n.discovery != nil {
		_ = n.discovery.Stop()
	}
	_ = n.clusterStore.Save(n.cluster.Snapshot())
	_ = n.schemaStore.Close()
	n.client.Close()
	return nil
}

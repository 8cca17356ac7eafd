package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/prism-db/prism/internal/cluster/coordinator"
	"github.com/prism-db/prism/internal/cluster/federation"
	"github.com/prism-db/prism/internal/cluster/router"
	"github.com/prism-db/prism/internal/cluster/state"
	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/config"
	"github.com/prism-db/prism/internal/storage"
	"github.com/prism-db/prism/internal/transport"
)

func newSearchCmd() *cobra.Command {
	var query, strategy string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <collection>",
		Short: "Run a hybrid search against a collection, fanning out across every shard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], query, strategy, limit)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "full-text query string")
	cmd.Flags().StringVar(&strategy, "strategy", "", "merge strategy: simple, score_normalized, rrf, weighted (default: rrf)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results to return")
	return cmd
}

func runSearch(cmd *cobra.Command, collectionName, query, strategy string, limit int) error {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	clusterStore, err := storage.NewClusterStore(filepath.Join(cfg.Collections.Dir, ".cluster"))
	if err != nil {
		return fmt.Errorf("opening cluster store: %w", err)
	}
	cluster := state.New()
	if err := clusterStore.RestoreInto(cluster); err != nil {
		return fmt.Errorf("restoring cluster state: %w", err)
	}

	client := transport.NewClient(transport.ClientConfig{
		InsecureSkipVerify: true,
		ConnectTimeout:     time.Duration(cfg.Cluster.ConnectTimeoutMS) * time.Millisecond,
		RequestTimeout:     time.Duration(cfg.Cluster.RequestTimeoutMS) * time.Millisecond,
	})
	defer client.Close()

	merger := federation.NewResultMerger(federation.Strategy(cfg.Hybrid.DefaultStrategy))
	local, err := loadManager(cfg.Collections.Dir)
	if err != nil {
		return fmt.Errorf("loading local collections: %w", err)
	}
	coord := coordinator.New(router.New(cluster), client, local, merger)

	req := collection.SearchRequest{QueryString: query, Limit: limit}
	merged, err := coord.Search(cmd.Context(), collectionName, req, federation.Strategy(strategy), federation.Options{RRFK: cfg.Hybrid.RRFK})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

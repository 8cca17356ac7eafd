// Package cmd provides the CLI commands for prismd.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/prism-db/prism/pkg/version"
)

var dataDir string

// NewRootCmd creates the root command for the prismd CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "prismd",
		Short:   "Prism distributed hybrid search node",
		Long:    `prismd runs a Prism cluster node (BM25 + HNSW hybrid search) and provides a CLI client for talking to one.`,
		Version: version.Version,
	}
	root.SetVersionTemplate("prismd version {{.Version}}\n")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "directory holding prism.yaml, collection schemas, and node state")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newSchemaCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

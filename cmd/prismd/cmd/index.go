package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prism-db/prism/internal/collection"
	"github.com/prism-db/prism/internal/transport"
)

func newIndexCmd() *cobra.Command {
	var addr, docsFile string
	cmd := &cobra.Command{
		Use:   "index <collection>",
		Short: "Index documents from a JSON file into a collection on a remote node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, addr, args[0], docsFile)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7800", "node address to index into")
	cmd.Flags().StringVar(&docsFile, "file", "", "path to a JSON array of documents ({id, fields})")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runIndex(cmd *cobra.Command, addr, collectionName, docsFile string) error {
	raw, err := os.ReadFile(docsFile)
	if err != nil {
		return fmt.Errorf("reading documents file: %w", err)
	}
	var docs []collection.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("parsing documents file: %w", err)
	}

	client := transport.NewClient(transport.ClientConfig{
		InsecureSkipVerify: true,
		ConnectTimeout:     5 * time.Second,
		RequestTimeout:     30 * time.Second,
	})
	defer client.Close()

	if err := client.Index(cmd.Context(), addr, collectionName, docs); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents into %q on %s\n", len(docs), collectionName, addr)
	return nil
}

// Package cli wires the operator commands against the processing queue,
// grounded on queuectl's cobra command-factory pattern.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/queuestore"
)

// RootCmd assembles every operator subcommand under a single entrypoint.
func RootCmd(store *queuestore.Store) *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestorctl",
		Short: "Operate the ingestion processing queue",
	}

	root.AddCommand(
		StatusCmd(store),
		ListCmd(store),
		RetryCmd(store),
		RetryAllCmd(store),
		CleanupCmd(store),
		ResetCmd(store),
	)

	return root
}

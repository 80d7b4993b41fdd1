package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/queuestore"
)

// CleanupCmd returns the cleanup command.
func CleanupCmd(store *queuestore.Store) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed rows older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			n, err := store.CleanupCompleted(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}

			fmt.Printf("Deleted %d completed row(s) older than %d day(s)\n", n, days)
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "Delete completed rows last updated more than this many days ago")

	return cmd
}

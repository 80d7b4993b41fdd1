package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/queuestore"
	"github.com/jtdct/ingestor/internal/worker"
)

// RetryCmd returns the retry command.
func RetryCmd(store *queuestore.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a single error row for retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			item, err := store.ResetForRetry(id)
			if err != nil {
				return fmt.Errorf("retry %d: %w", id, err)
			}

			fmt.Printf("Row %d reset to %s\n", item.ID, item.Status)
			return nil
		},
	}
}

// RetryAllCmd returns the retry-all command.
func RetryAllCmd(store *queuestore.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-all",
		Short: "Reset every retriable error row for retry",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := store.ListByStatus(models.StatusError, 10000)
			if err != nil {
				return fmt.Errorf("list error rows: %w", err)
			}

			reset := 0
			skipped := 0
			for _, item := range items {
				if item.ErrorMessage.Valid && !worker.IsRetriable(item.ErrorMessage.String) {
					skipped++
					continue
				}
				if _, err := store.ResetForRetry(item.ID); err != nil {
					return fmt.Errorf("retry %d: %w", item.ID, err)
				}
				reset++
			}

			fmt.Printf("Reset %d row(s), skipped %d permanent failure(s)\n", reset, skipped)
			return nil
		},
	}
}

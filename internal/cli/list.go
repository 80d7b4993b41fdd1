package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/queuestore"
)

// ListCmd returns the list command.
func ListCmd(store *queuestore.Store) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue rows filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			if status == "" {
				return fmt.Errorf("--status is required")
			}

			items, err := store.ListByStatus(models.Status(status), limit)
			if err != nil {
				return fmt.Errorf("list by status: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No rows found")
				return nil
			}

			fmt.Printf("%-6s %-12s %-40s %-10s %-8s\n", "ID", "STATUS", "FILE PATH", "RETRIES", "NEW PATH")
			for _, item := range items {
				path := item.FilePath
				if len(path) > 40 {
					path = path[:37] + "..."
				}
				newPath := "-"
				if item.NewPath.Valid && item.NewPath.String != "" {
					newPath = "moved"
				}
				fmt.Printf("%-6d %-12s %-40s %-10d %-8s\n", item.ID, item.Status, path, item.RetryCount, newPath)
			}
			fmt.Printf("\nTotal: %d\n", len(items))
			return nil
		},
	}

	cmd.Flags().StringP("status", "s", "", "Filter by status (pending, processing, moved, emby_pending, completed, error)")
	cmd.Flags().IntP("limit", "n", 50, "Maximum rows to return")

	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/queuestore"
)

// statusOrder fixes the display order of StatusCmd's output regardless of
// map iteration order.
var statusOrder = []models.Status{
	models.StatusPending,
	models.StatusProcessing,
	models.StatusMoved,
	models.StatusEmbyPending,
	models.StatusCompleted,
	models.StatusError,
}

// StatusCmd returns the status command.
func StatusCmd(store *queuestore.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show processing queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := store.CountByStatus()
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			total := 0
			fmt.Println("Processing Queue Status:")
			fmt.Println("─────────────────────────────")
			for _, s := range statusOrder {
				fmt.Printf("  %-14s %d\n", s, counts[s])
				total += counts[s]
			}
			fmt.Println("─────────────────────────────")
			fmt.Printf("  %-14s %d\n", "total", total)
			return nil
		},
	}
}

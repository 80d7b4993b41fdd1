package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jtdct/ingestor/internal/queuestore"
)

// ResetCmd returns the reset command.
func ResetCmd(store *queuestore.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Force a row back to pending regardless of its current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			item, err := store.ForceReset(id)
			if err != nil {
				return fmt.Errorf("reset %d: %w", id, err)
			}

			fmt.Printf("Row %d forced to %s\n", item.ID, item.Status)
			return nil
		},
	}
}

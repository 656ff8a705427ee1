package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/turk-gin/internal/container"
	"github.com/spf13/cobra"
)

// syncCmd 同步一次后退出, 适合由外部定时器驱动
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync batches with the marketplace once",
	Long: `Sync local records with the marketplace once and exit.
With --batch only the given batches are synced, otherwise every batch
in pending_annotation or pending_aggregation is synced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchIDs, _ := cmd.Flags().GetStringSlice("batch")

		return withContainer(cmd, func(ctx context.Context, ctr *container.Container) error {
			if len(batchIDs) == 0 {
				return ctr.Scheduler().RunOnce(ctx)
			}

			var errs []error
			for _, id := range batchIDs {
				if err := ctr.Manager().SyncBatch(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("batch %s: %w", id, err))
				}
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringSlice("batch", nil, "Batch IDs to sync (default: all active batches)")
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reclaim expired and exhausted shares",
	Long: `Run a single sweeper pass against the configured backends.

The pass:
  1. Tombstones shares that have expired or used up their downloads
  2. Deletes the blob of every tombstoned share
  3. Purges tombstones older than sweeper.tombstone_retention

Use this when the server runs with the sweeper disabled, for example
from a cron job.`,
	RunE: runCleanup,
}

var cleanupLimit int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupLimit, "limit", 0, "shares to process per batch (default: sweeper.batch_size)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if cleanupLimit > 0 {
		cfg.Sweeper.BatchSize = cleanupLimit
	}

	slog.Info("starting cleanup", "batch_size", cfg.Sweeper.BatchSize)

	result, err := newSweeper(cfg, b).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	staleTemp := 0
	if b.files != nil {
		if staleTemp, err = b.files.RemoveStaleTemp(ctx, staleTempAge); err != nil {
			return fmt.Errorf("remove stale temp files: %w", err)
		}
	}

	slog.Info("cleanup complete",
		"tombstoned", result.Tombstoned,
		"blobs_reclaimed", result.BlobsReclaimed,
		"purged", result.Purged,
		"errors", result.Errors,
		"stale_temp_removed", staleTemp,
		"duration", result.Duration,
	)
	if result.Errors > 0 {
		return fmt.Errorf("cleanup finished with %d errors", result.Errors)
	}
	return nil
}

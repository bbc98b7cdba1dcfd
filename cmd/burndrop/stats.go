package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate share statistics",
	Long:  `Print the same statistics served by GET /api/stats as JSON.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	service, err := newService(cfg, b)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

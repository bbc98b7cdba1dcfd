package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/config"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke [flags] <id1> [id2] ...",
	Short: "Revoke shares before they expire",
	Long: `Revoke shares so no further downloads are granted.

The share is tombstoned immediately and its blob deleted. A blob that
cannot be deleted now is reclaimed by the next sweeper pass.

Examples:
  # Revoke a single share
  burndrop revoke Xk3tQ9bZ2mLpR7vW1nC8sA

  # Revoke quietly (suppress per-share output)
  burndrop revoke -q Xk3tQ9bZ2mLpR7vW1nC8sA Ab4rT7yU1iOpQ2wE5rT6yU`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRevoke,
}

var revokeQuiet bool

func init() {
	revokeCmd.Flags().BoolVarP(&revokeQuiet, "quiet", "q", false, "suppress per-share output")
	rootCmd.AddCommand(revokeCmd)
}

func runRevoke(cmd *cobra.Command, args []string) error {
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

	revoked := 0
	notFound := 0

	for _, id := range args {
		revokeErr := service.Revoke(ctx, id)
		if errors.Is(revokeErr, burndrop.ErrNotFound) {
			notFound++
			if !revokeQuiet {
				slog.Warn("not found", "id", id)
			}
			continue
		}
		if revokeErr != nil {
			return fmt.Errorf("revoke %s: %w", id, revokeErr)
		}
		revoked++
		if !revokeQuiet {
			slog.Info("revoked", "id", id)
		}
	}

	slog.Info("revoke complete", "revoked", revoked, "not_found", notFound)
	return nil
}

package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/clientcli"
)

var infoPassword string

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show share details without downloading",
	Long: `Show the name, size, expiry and download count of a share.

This does not use up a download.

Examples:
  burndrop-cli info Xk3tQ9bZ2mLpR7vW1nC8sA
  burndrop-cli info --output json Xk3tQ9bZ2mLpR7vW1nC8sA`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoPassword, "password", "", "share password (prompted for when needed)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	id := shareID(args[0])

	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := client.Info(ctx, id, infoPassword)
	if errors.Is(err, clientcli.ErrPasswordRequired) && infoPassword == "" {
		password, promptErr := promptSharePassword()
		if promptErr != nil {
			return promptErr
		}
		info, err = client.Info(ctx, id, password)
	}
	if err != nil {
		return err
	}

	return getFormatter().FormatInfo(os.Stdout, info)
}

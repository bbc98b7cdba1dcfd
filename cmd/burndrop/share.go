package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/config"
)

var shareCmd = &cobra.Command{
	Use:   "share [flags] <file1> [file2] ...",
	Short: "Create shares from local files",
	Long: `Create a share for each file directly against the configured backends,
without going through the HTTP server. The share id is printed per file.

Examples:
  # Share a file for the default TTL
  burndrop share report.pdf

  # Share for two hours, at most three downloads
  burndrop share --ttl 2h --max-downloads 3 report.pdf

  # Print download links instead of bare ids
  burndrop share --base-url https://drop.example.com report.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShare,
}

var (
	shareTTL          time.Duration
	sharePassword     string
	shareMaxDownloads int
	shareBaseURL      string
)

func init() {
	shareCmd.Flags().DurationVar(&shareTTL, "ttl", 0, "lifetime of each share (default: service.default_ttl)")
	shareCmd.Flags().StringVar(&sharePassword, "password", "", "password required to download")
	shareCmd.Flags().IntVar(&shareMaxDownloads, "max-downloads", 0, "download limit, 0 for unlimited")
	shareCmd.Flags().StringVar(&shareBaseURL, "base-url", "", "server URL used to print download links")
	rootCmd.AddCommand(shareCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
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

	req := burndrop.UploadRequest{
		TTL:      shareTTL,
		Password: sharePassword,
	}
	if shareMaxDownloads > 0 {
		req.MaxDownloads = &shareMaxDownloads
	}

	out := cmd.OutOrStdout()
	for _, path := range args {
		req.Name = filepath.Base(path)

		result, shareErr := shareFile(cmd, service, req, path)
		if shareErr != nil {
			return fmt.Errorf("share %s: %w", path, shareErr)
		}

		slog.Debug("shared", "name", result.Name, "size", result.SizeBytes, "expires_at", result.ExpiresAt)
		_, _ = fmt.Fprintf(out, "%s\t%s\n", shareLink(result.ID), path)
	}

	return nil
}

func shareFile(cmd *cobra.Command, service *burndrop.Service, req burndrop.UploadRequest, path string) (burndrop.UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return burndrop.UploadResult{}, err
	}
	if info.IsDir() {
		return burndrop.UploadResult{}, fmt.Errorf("%s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return burndrop.UploadResult{}, err
	}
	defer func() { _ = f.Close() }()

	return service.Upload(cmd.Context(), req, f)
}

func shareLink(id string) string {
	if shareBaseURL == "" {
		return id
	}
	return strings.TrimSuffix(shareBaseURL, "/") + "/api/shares/" + id + "/download"
}

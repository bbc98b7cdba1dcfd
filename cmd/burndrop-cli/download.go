package main

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/clientcli"
)

var (
	downloadOutput   string
	downloadStdout   bool
	downloadPassword string
)

var downloadCmd = &cobra.Command{
	Use:   "download <id|link> [local-path]",
	Short: "Download a share",
	Long: `Download a share. Each successful download counts against the share's
limit; the last one burns it.

The file is saved under the name the uploader gave it unless a path
is given. When the share is password protected and no --password is
set, the password is prompted for.

Examples:
  burndrop-cli download Xk3tQ9bZ2mLpR7vW1nC8sA
  burndrop-cli download http://localhost:5708/api/shares/Xk3tQ9bZ2mLpR7vW1nC8sA/download
  burndrop-cli download -o ./downloads/ Xk3tQ9bZ2mLpR7vW1nC8sA
  burndrop-cli download --stdout Xk3tQ9bZ2mLpR7vW1nC8sA | tar xz`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "out", "o", "", "output file or directory")
	downloadCmd.Flags().BoolVar(&downloadStdout, "stdout", false, "write to stdout")
	downloadCmd.Flags().StringVar(&downloadPassword, "password", "", "share password (prompted for when needed)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	id := shareID(args[0])

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}
	if downloadOutput != "" {
		localPath = downloadOutput
	}
	if downloadStdout {
		localPath = "-"
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := clientcli.DownloadOptions{
		ID:        id,
		Password:  downloadPassword,
		LocalPath: localPath,
	}

	result, reader, err := client.Download(ctx, opts)
	if errors.Is(err, clientcli.ErrPasswordRequired) && downloadPassword == "" {
		if opts.Password, err = promptSharePassword(); err != nil {
			return err
		}
		result, reader, err = client.Download(ctx, opts)
	}
	if err != nil {
		return err
	}

	// If stdout, write content to stdout and keep the summary off it
	if reader != nil {
		defer func() { _ = reader.Close() }()
		if _, err := io.Copy(os.Stdout, reader); err != nil {
			return err
		}
		return getFormatter().FormatDownload(os.Stderr, result)
	}

	return getFormatter().FormatDownload(os.Stdout, result)
}

// shareID accepts a bare id or a share link and returns the id.
func shareID(arg string) string {
	u, err := url.Parse(arg)
	if err != nil || u.Scheme == "" {
		return arg
	}
	p := strings.TrimSuffix(u.Path, "/")
	p = strings.TrimSuffix(p, "/download")
	return path.Base(p)
}

// promptSharePassword asks for the password of a protected share.
func promptSharePassword() (string, error) {
	prompt := promptui.Prompt{
		Label: "Share password",
		Mask:  '*',
	}
	password, err := prompt.Run()
	if err != nil {
		return "", handlePromptError(err)
	}
	return password, nil
}

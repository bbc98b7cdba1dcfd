package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/clientcli"
)

var (
	uploadTTL            time.Duration
	uploadPassword       string
	uploadPromptPassword bool
	uploadMaxDownloads   int
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file> [file...]",
	Short: "Share files",
	Long: `Upload files to the server, creating one share per file.

The printed link is the only way to reach a share, so keep it.

Examples:
  burndrop-cli upload ./report.pdf
  burndrop-cli upload --ttl 2h --max-downloads 1 ./report.pdf
  burndrop-cli upload --prompt-password ./keys.tar.gz
  burndrop-cli upload -q ./a.txt ./b.txt | xargs -n1 echo`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().DurationVar(&uploadTTL, "ttl", 0, "share lifetime, e.g. 30m or 72h (default: server default)")
	uploadCmd.Flags().StringVar(&uploadPassword, "password", "", "password required to download")
	uploadCmd.Flags().BoolVar(&uploadPromptPassword, "prompt-password", false, "prompt for the password instead of passing it as a flag")
	uploadCmd.Flags().IntVar(&uploadMaxDownloads, "max-downloads", 0, "number of downloads before the share burns (default: unlimited)")
	uploadCmd.MarkFlagsMutuallyExclusive("password", "prompt-password")
}

func runUpload(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	password := uploadPassword
	if uploadPromptPassword {
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]clientcli.UploadResult, 0, len(args))
	var failed error
	for _, path := range args {
		result, uploadErr := client.Upload(ctx, clientcli.UploadOptions{
			LocalPath:    path,
			TTL:          uploadTTL,
			Password:     password,
			MaxDownloads: uploadMaxDownloads,
		})
		if uploadErr != nil {
			results = append(results, clientcli.UploadResult{LocalPath: path, Err: uploadErr})
			failed = errors.Join(failed, uploadErr)
			continue
		}
		results = append(results, *result)
	}

	if err := getFormatter().FormatUpload(os.Stdout, results); err != nil {
		return err
	}
	return failed
}

// promptNewPassword asks for a password twice with masked input.
func promptNewPassword() (string, error) {
	first := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return errors.New("password must not be empty")
			}
			if len(input) > 72 {
				return errors.New("password must be at most 72 bytes")
			}
			return nil
		},
	}
	password, err := first.Run()
	if err != nil {
		return "", handlePromptError(err)
	}

	confirm := promptui.Prompt{
		Label: "Confirm password",
		Mask:  '*',
		Validate: func(input string) error {
			if input != password {
				return errors.New("passwords do not match")
			}
			return nil
		},
	}
	if _, err := confirm.Run(); err != nil {
		return "", handlePromptError(err)
	}
	return password, nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/clientcli"
)

var (
	version = "dev"

	cfgFile  string
	profile  string
	endpoint string
	output   string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:     "burndrop-cli",
	Version: version,
	Short:   "Client for burndrop file sharing",
	Long: `burndrop-cli - Client for the burndrop file sharing server

Shares expire after their TTL or once their download limit is used up.
Every download counts, so use 'info' to inspect a share without
spending one.

The server is taken from, in increasing precedence: the selected
profile, BURNDROP_ENDPOINT, and --endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if output != clientcli.OutputTable && output != clientcli.OutputJSON {
			return fmt.Errorf("invalid --output %q: use table or json", output)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.burndrop/config.yaml, env: BURNDROP_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "profile name (env: BURNDROP_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "server URL (default: http://localhost:5708, env: BURNDROP_ENDPOINT)")
	rootCmd.PersistentFlags().StringVar(&output, "output", clientcli.OutputTable, "output format: table or json")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = getFormatter().FormatError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps share denials to distinct exit codes for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, clientcli.ErrNotFound):
		return 3
	case errors.Is(err, clientcli.ErrPasswordRequired), errors.Is(err, clientcli.ErrPasswordInvalid):
		return 4
	case errors.Is(err, clientcli.ErrTooManyAttempts):
		return 5
	default:
		return 1
	}
}

// getConfigPath returns the profile file path from the flag, the
// environment or the default location.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := clientcli.ConfigPathFromEnv(); p != "" {
		return p
	}
	return clientcli.DefaultConfigPath()
}

// buildConfig merges config from the profile file, env vars, and flags (flags take precedence).
func buildConfig() (*clientcli.Config, error) {
	var configs []*clientcli.Config

	profileName := profile
	if profileName == "" {
		profileName = clientcli.ProfileFromEnv()
	}

	// 1. Load from the profile file
	configFile, err := clientcli.LoadConfigFile(getConfigPath())
	switch {
	case err == nil:
		p, profileErr := configFile.GetProfile(profileName)
		if profileErr != nil && (profileName != "" || !errors.Is(profileErr, clientcli.ErrNoProfiles)) {
			return nil, profileErr
		}
		configs = append(configs, clientcli.ConfigFromProfile(p))
	case errors.Is(err, os.ErrNotExist) && cfgFile == "" && profileName == "":
		// no profile file and none asked for
	default:
		return nil, err
	}

	// 2. Load from environment variables
	configs = append(configs, clientcli.ConfigFromEnv())

	// 3. Load from flags
	configs = append(configs, &clientcli.Config{Endpoint: endpoint})

	return clientcli.MergeConfig(configs...), nil
}

// getFormatter returns the appropriate formatter based on flags.
func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(output, quiet)
}

// getClient creates and returns a configured client.
func getClient() (*clientcli.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	return clientcli.New(cfg)
}

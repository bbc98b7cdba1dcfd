package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/config"
)

var version = "dev"

// flushLogs is set by setupLogging and drains buffered log sinks on exit.
var flushLogs = func() {}

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "burndrop",
	Short:   "Self-destructing file sharing server",
	Long: `Burndrop shares files through capability links that expire after a
time limit or a number of downloads, optionally behind a password.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		flushLogs = setupLogging(cfg.Log)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres, bolt, memory (env: BURNDROP_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string or bolt file path (env: BURNDROP_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("storage-type", "", "blob storage: filesystem, s3, memory (env: BURNDROP_STORAGE_TYPE)")
	rootCmd.PersistentFlags().String("storage-path", "", "storage directory path (env: BURNDROP_STORAGE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: BURNDROP_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json (env: BURNDROP_LOG_FORMAT)")
}

func main() {
	err := rootCmd.Execute()
	flushLogs()
	if err != nil {
		os.Exit(1)
	}
}

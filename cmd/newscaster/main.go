// Package main provides the newscaster CLI: one-shot runs, the scheduled
// service with its HTTP surface, and post maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath  string
	flagDatabaseURL string
	flagVerbose     bool
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "newscaster",
	Short: "Automated AI video newscaster",
	Long: `newscaster writes a short news script with a language model, optionally grounded in fresh search results,
animates an avatar reading it, publishes the video with a companion post, and records the post once it is live.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print a detailed summary of each run")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL env var)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

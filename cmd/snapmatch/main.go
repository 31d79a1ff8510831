// snapmatch verifies replayed API responses against recorded snapshot
// files: replay suites, normalize with placeholder transformers,
// compare byte for byte, and re-record deliberately.
package main

import (
	"fmt"
	"os"

	"snapmatch/internal/config"
	"snapmatch/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath     string
	verbose     bool
	jsonLogs    bool
	targetFlag  string
	snapshotDir string

	// Loaded in PersistentPreRunE, shared by all commands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "snapmatch",
	Short: "Snapshot-based contract testing for AWS-style JSON APIs",
	Long: `snapmatch replays recorded test suites against a target endpoint and
compares the responses to recorded snapshot files.

Random values (request IDs, UUIDs, timestamps, account IDs) are
normalized to placeholder tokens before comparison, so a verification
passes exactly when the replayed responses reproduce the recorded JSON
byte for byte after substitution. Re-record deliberately with
'verify --update' or 'record', or review changes one by one with
'review'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if targetFlag != "" {
			cfg.Target = targetFlag
		}
		if snapshotDir != "" {
			cfg.SnapshotDir = snapshotDir
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Init(level, jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "snapmatch.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "JSON log encoding")
	rootCmd.PersistentFlags().StringVarP(&targetFlag, "target", "t", "", "target base URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&snapshotDir, "snapshots", "s", "", "snapshot directory (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

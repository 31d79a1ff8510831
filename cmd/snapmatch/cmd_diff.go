package main

import (
	"database/sql"
	"errors"
	"fmt"

	"snapmatch/internal/store"

	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <test-id>",
	Short: "Show the last recorded-vs-actual diff for a test",
	Long: `Prints the mismatch detail of the most recent failed verification of
the given test identifier, including the unified diff of recorded
against replayed content.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	history, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()

	rec, err := history.LastFailure(cmd.Context(), args[0])
	if errors.Is(err, sql.ErrNoRows) {
		fmt.Printf("%s has no recorded failures.\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s (run %s, %s)\n\n", rec.TestID, rec.RunID, rec.Status)
	fmt.Println(rec.Detail)
	return nil
}

package main

import (
	"fmt"

	"snapmatch/internal/report"
	"snapmatch/internal/store"

	"github.com/spf13/cobra"
)

var (
	reportSuite string
	reportLimit int
	reportPlain bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recent verification runs",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportSuite, "suite", "", "restrict to one suite")
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 10, "number of runs to include")
	reportCmd.Flags().BoolVar(&reportPlain, "plain", false, "print raw markdown without terminal styling")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	history, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()

	summary, err := report.Build(cmd.Context(), history, reportSuite, reportLimit)
	if err != nil {
		return err
	}
	if reportPlain {
		fmt.Print(summary.Markdown())
		return nil
	}
	fmt.Print(summary.Render(0))
	return nil
}

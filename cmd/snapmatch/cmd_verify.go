package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"snapmatch/internal/store"

	"github.com/spf13/cobra"
)

var updateFlag bool

var verifyCmd = &cobra.Command{
	Use:   "verify [suite.yaml ...]",
	Short: "Replay suites and compare against recorded snapshots",
	Long: `Replays each suite against the target and verifies every case against
its recorded snapshot entry. With no arguments every suite in the
configured suite directory runs. --update re-records instead of
verifying.`,
	RunE: runVerify,
}

var recordCmd = &cobra.Command{
	Use:   "record [suite.yaml ...]",
	Short: "Replay suites and re-record their snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		updateFlag = true
		return runVerify(cmd, args)
	},
}

func init() {
	verifyCmd.Flags().BoolVarP(&updateFlag, "update", "u", false, "re-record snapshots instead of verifying")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(recordCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	suites, err := resolveSuites(cfg, args)
	if err != nil {
		return err
	}
	targets, err := resolveTargets(cfg)
	if err != nil {
		return err
	}

	history, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()

	totalFailed := 0
	for _, tgt := range targets {
		for _, suitePath := range suites {
			out, err := verifySuite(ctx, cfg, tgt, suitePath, updateFlag)
			if err != nil {
				return fmt.Errorf("suite %s: %w", suitePath, err)
			}
			printOutcome(out)
			if err := persistOutcome(ctx, history, out); err != nil {
				return err
			}
			_, failed, _ := out.counts()
			totalFailed += failed
		}
	}

	if updateFlag {
		fmt.Println("Snapshots updated.")
		return nil
	}
	if totalFailed > 0 {
		return fmt.Errorf("%d case(s) failed verification", totalFailed)
	}
	fmt.Println("All snapshots verified.")
	return nil
}

func printOutcome(o *suiteOutcome) {
	passed, failed, skipped := o.counts()
	fmt.Printf("%s @ %s: %d passed, %d failed, %d skipped\n",
		o.Suite.Name, o.Target, passed, failed, skipped)
	for _, c := range o.Cases {
		marker := map[string]string{
			store.StatusPassed:  "ok",
			store.StatusFailed:  "FAIL",
			store.StatusError:   "ERROR",
			store.StatusSkipped: "skip",
		}[c.Status]
		fmt.Printf("  [%s] %s\n", marker, c.TestID)
		if c.Detail != "" && c.Status != store.StatusPassed {
			for _, line := range strings.Split(strings.TrimRight(c.Detail, "\n"), "\n") {
				fmt.Printf("       %s\n", line)
			}
		}
	}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"snapmatch/internal/snapshot"
	"snapmatch/internal/store"
	"snapmatch/internal/watch"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-verify suites as their snapshot files change",
	Long: `Watches the snapshot directory and re-verifies the matching suite
whenever a snapshot file settles after editing. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()

	handler := func(path string) {
		suite := strings.TrimSuffix(filepath.Base(path), snapshot.FileSuffix)
		suitePath, ok := suiteForName(suite)
		if !ok {
			fmt.Printf("%s changed, but no suite definition named %q found\n", path, suite)
			return
		}
		fmt.Printf("%s changed, re-verifying %s\n", path, suitePath)

		targets, err := resolveTargets(cfg)
		if err != nil {
			fmt.Printf("  bad matrix configuration: %v\n", err)
			return
		}
		for _, tgt := range targets {
			out, err := verifySuite(ctx, cfg, tgt, suitePath, false)
			if err != nil {
				fmt.Printf("  verification error: %v\n", err)
				return
			}
			printOutcome(out)
			if err := persistOutcome(ctx, history, out); err != nil {
				fmt.Printf("  failed to persist run: %v\n", err)
			}
		}
	}

	w, err := watch.New(cfg.SnapshotDir, handler)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", cfg.SnapshotDir)
	<-ctx.Done()
	return nil
}

// suiteForName locates the suite YAML whose file name matches a
// snapshot suite name.
func suiteForName(name string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(cfg.SuiteDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

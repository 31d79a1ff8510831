package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"snapmatch/cmd/snapmatch/ui"
	"snapmatch/internal/diff"
	"snapmatch/internal/snapshot"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review [suite.yaml ...]",
	Short: "Interactively accept or reject snapshot changes",
	Long: `Replays suites, collects every case whose replay differs from its
recorded snapshot, and opens an interactive screen to step through the
diffs. Accepted changes are re-recorded; rejected ones leave the
snapshot untouched.`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
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

	engine := diff.NewEngine()
	var changes []*ui.Change
	pendingByChange := make(map[*ui.Change]*pendingChange)

	for _, tgt := range targets {
		for _, suitePath := range suites {
			out, err := verifySuite(ctx, cfg, tgt, suitePath, false)
			if err != nil {
				return fmt.Errorf("suite %s: %w", suitePath, err)
			}
			for _, c := range out.Cases {
				if c.Pending == nil {
					continue
				}
				change := &ui.Change{
					TestID:       c.Pending.TestID,
					SnapshotPath: c.Pending.SnapshotPath,
					IsNew:        c.Pending.OldCanonical == "",
					Diff: engine.Compute("recorded", "actual",
						c.Pending.OldCanonical, c.Pending.NewCanonical),
				}
				changes = append(changes, change)
				pendingByChange[change] = c.Pending
			}
		}
	}

	if len(changes) == 0 {
		fmt.Println("All snapshots match; nothing to review.")
		return nil
	}

	reviewed, err := ui.Run(changes)
	if err != nil {
		return err
	}
	return applyAccepted(reviewed, pendingByChange)
}

// applyAccepted re-records accepted changes, grouped per snapshot file
// so each file is saved once.
func applyAccepted(changes []*ui.Change, pending map[*ui.Change]*pendingChange) error {
	files := make(map[string]*snapshot.File)
	accepted := 0

	for _, change := range changes {
		if !change.Accepted {
			continue
		}
		p := pending[change]
		file, ok := files[p.SnapshotPath]
		if !ok {
			var err error
			file, err = snapshot.Load(p.SnapshotPath)
			if err != nil {
				return err
			}
			files[p.SnapshotPath] = file
		}
		file.Put(p.TestID, p.NewRecord)
		accepted++
	}

	for path, file := range files {
		if err := file.Save(); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
	}

	if accepted == 0 {
		fmt.Println("No changes accepted; snapshots unchanged.")
	} else {
		fmt.Printf("Re-recorded %d snapshot entr%s across %d file(s).\n",
			accepted, plural(accepted, "y", "ies"), len(files))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

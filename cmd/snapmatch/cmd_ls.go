package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"snapmatch/internal/snapshot"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [suite ...]",
	Short: "List recorded snapshot entries",
	Long: `Lists the test identifiers and recording dates in each snapshot file.
Suite names restrict the listing; with no arguments every file in the
snapshot directory is listed.`,
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	paths, err := snapshotFiles(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No snapshot files in %s\n", cfg.SnapshotDir)
		return nil
	}

	for _, path := range paths {
		file, err := snapshot.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d entries)\n", path, file.Len())
		for _, key := range file.Keys() {
			rec, _ := file.Get(key)
			fmt.Printf("  %-70s recorded %s\n", key, rec.RecordedDate)
		}
	}
	return nil
}

func snapshotFiles(suites []string) ([]string, error) {
	if len(suites) > 0 {
		paths := make([]string, 0, len(suites))
		for _, s := range suites {
			paths = append(paths, snapshot.PathForSuite(cfg.SnapshotDir, strings.TrimSuffix(s, snapshot.FileSuffix)))
		}
		return paths, nil
	}
	paths, err := filepath.Glob(filepath.Join(cfg.SnapshotDir, "*"+snapshot.FileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

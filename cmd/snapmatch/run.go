package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"snapmatch/internal/config"
	"snapmatch/internal/diff"
	"snapmatch/internal/logging"
	"snapmatch/internal/matrix"
	"snapmatch/internal/replay"
	"snapmatch/internal/snapshot"
	"snapmatch/internal/store"
	"snapmatch/internal/verify"
)

// caseOutcome is one case's verdict plus the material the diff, store
// and review surfaces need.
type caseOutcome struct {
	TestID   string
	Status   string // store.Status* values
	Detail   string
	Duration time.Duration
	Pending  *pendingChange
}

// pendingChange is a proposed re-recording of one snapshot entry.
type pendingChange struct {
	TestID       string
	SnapshotPath string
	OldCanonical string
	NewCanonical string
	NewRecord    *snapshot.Record
}

// suiteOutcome aggregates one suite replayed against one target.
type suiteOutcome struct {
	SuitePath string
	Suite     *replay.Suite
	Target    matrix.Target
	Run       *replay.RunResult
	Cases     []caseOutcome
}

func (o *suiteOutcome) counts() (passed, failed, skipped int) {
	for _, c := range o.Cases {
		switch c.Status {
		case store.StatusPassed:
			passed++
		case store.StatusSkipped:
			skipped++
		default:
			failed++
		}
	}
	return
}

// resolveSuites turns command arguments into suite YAML paths; with no
// arguments every suite under the configured suite directory runs.
func resolveSuites(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(cfg.SuiteDir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no suites found in %s", cfg.SuiteDir)
	}
	sort.Strings(paths)
	return paths, nil
}

// resolveTargets expands the configured MA/MR matrix, defaulting to a
// single target.
func resolveTargets(cfg *config.Config) ([]matrix.Target, error) {
	if cfg.MatrixPath == "" {
		return []matrix.Target{{AccountID: cfg.AccountID, Region: cfg.Region}}, nil
	}
	m, err := matrix.Load(cfg.MatrixPath)
	if err != nil {
		return nil, err
	}
	return m.Expand(cfg.AccountID, cfg.Region), nil
}

// verifySuite replays one suite against one target and settles every
// case against the snapshot file. In update mode all replayed cases are
// re-recorded and saved; otherwise failures carry a rendered diff and a
// pending change for review.
func verifySuite(ctx context.Context, cfg *config.Config, tgt matrix.Target, suitePath string, update bool) (*suiteOutcome, error) {
	s, err := replay.LoadSuite(suitePath)
	if err != nil {
		return nil, err
	}

	runner := replay.NewRunner(cfg.Target, replay.WithParallelism(cfg.Parallelism))
	run, err := runner.Run(ctx, s)
	if err != nil {
		return nil, err
	}

	snapPath := snapshot.PathForSuite(cfg.SnapshotDir, replay.SuiteNameFromPath(suitePath))
	file, err := snapshot.Load(snapPath)
	if err != nil {
		return nil, err
	}

	out := &suiteOutcome{SuitePath: suitePath, Suite: s, Target: tgt, Run: run}
	engine := diff.NewEngine()
	dirty := false

	for i, cr := range run.Cases {
		c := s.Cases[i]
		oc := caseOutcome{TestID: cr.TestID, Duration: cr.Duration}

		switch {
		case cr.Skipped:
			oc.Status = store.StatusSkipped
		case cr.Err != nil:
			oc.Status = store.StatusError
			oc.Detail = cr.Err.Error()
		default:
			oc, err = settleCase(engine, file, s, c, tgt, cr, update)
			if err != nil {
				return nil, err
			}
			if update {
				dirty = true
			}
		}
		out.Cases = append(out.Cases, oc)
	}

	if dirty {
		if err := file.Save(); err != nil {
			return nil, err
		}
		logging.Get(logging.CategoryCLI).Infow("snapshot file updated",
			"path", snapPath, "entries", file.Len())
	}
	return out, nil
}

func settleCase(engine *diff.Engine, file *snapshot.File, s *replay.Suite, c replay.Case, tgt matrix.Target, cr replay.CaseResult, update bool) (caseOutcome, error) {
	oc := caseOutcome{TestID: cr.TestID, Duration: cr.Duration}

	chain, err := c.Chain(tgt.Region, tgt.AccountID)
	if err != nil {
		return oc, err
	}
	v := verify.New(verify.WithChain(chain), verify.WithSkipPaths(c.SkipPaths...))

	if update {
		rec, err := v.Update(cr.Results)
		if err != nil {
			return oc, err
		}
		file.Put(cr.TestID, rec)
		oc.Status = store.StatusPassed
		return oc, nil
	}

	rec, ok := file.Get(cr.TestID)
	if !ok {
		oc.Status = store.StatusFailed
		oc.Detail = "no recorded snapshot; record with --update or review"
		oc.Pending, err = proposeChange(file.Path(), s, c, tgt, cr, nil)
		return oc, err
	}

	res, err := v.Verify(cr.TestID, rec, cr.Results)
	if err != nil {
		return oc, err
	}
	if res.Passed {
		oc.Status = store.StatusPassed
		return oc, nil
	}

	oc.Status = store.StatusFailed
	oc.Pending, err = proposeChange(file.Path(), s, c, tgt, cr, rec)
	if err != nil {
		return oc, err
	}
	oc.Detail = failureDetail(engine, res, oc.Pending)
	return oc, nil
}

// proposeChange builds the re-recording a failed case would apply, with
// canonical old/new documents for diff rendering. A fresh chain keeps
// token indices independent of the verification pass.
func proposeChange(snapPath string, s *replay.Suite, c replay.Case, tgt matrix.Target, cr replay.CaseResult, old *snapshot.Record) (*pendingChange, error) {
	chain, err := c.Chain(tgt.Region, tgt.AccountID)
	if err != nil {
		return nil, err
	}
	v := verify.New(verify.WithChain(chain))
	rec, err := v.Update(cr.Results)
	if err != nil {
		return nil, err
	}

	p := &pendingChange{TestID: cr.TestID, SnapshotPath: snapPath, NewRecord: rec}
	if data, err := snapshot.MarshalCanonical(rec.RecordedContent); err == nil {
		p.NewCanonical = string(data)
	}
	if old != nil {
		if data, err := snapshot.MarshalCanonical(old.RecordedContent); err == nil {
			p.OldCanonical = string(data)
		}
	}
	return p, nil
}

// failureDetail renders the mismatch summary stored in run history and
// shown by the diff command.
func failureDetail(engine *diff.Engine, res *verify.Result, pending *pendingChange) string {
	var b strings.Builder
	for _, key := range res.MissingKeys {
		fmt.Fprintf(&b, "recorded key never replayed: %s\n", key)
	}
	for _, key := range res.ExtraKeys {
		fmt.Fprintf(&b, "replayed key not in snapshot: %s\n", key)
	}
	for _, m := range res.Mismatches {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	if pending != nil && pending.OldCanonical != "" && pending.NewCanonical != "" {
		d := engine.Compute("recorded", "actual", pending.OldCanonical, pending.NewCanonical)
		if rendered := engine.Render(d); rendered != "" {
			b.WriteByte('\n')
			b.WriteString(rendered)
		}
	}
	return b.String()
}

// persistOutcome writes one suite outcome into run history.
func persistOutcome(ctx context.Context, h *store.History, o *suiteOutcome) error {
	passed, failed, skipped := o.counts()
	run := store.Run{
		RunID:      o.Run.RunID,
		Suite:      o.Suite.Name,
		Target:     o.Run.Target,
		Region:     o.Target.Region,
		AccountID:  o.Target.AccountID,
		StartedAt:  o.Run.StartedAt,
		FinishedAt: o.Run.FinishedAt,
		Passed:     passed,
		Failed:     failed,
		Skipped:    skipped,
	}
	cases := make([]store.CaseRecord, 0, len(o.Cases))
	for _, c := range o.Cases {
		cases = append(cases, store.CaseRecord{
			TestID:   c.TestID,
			Status:   c.Status,
			Detail:   c.Detail,
			Duration: c.Duration,
		})
	}
	return h.RecordRun(ctx, run, cases)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"snapmatch/internal/logging"
)

func TestMain(m *testing.M) {
	logging.InitNop()
	m.Run()
}

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		RunID:      id,
		Suite:      "tests/aws/test_sts.py",
		Target:     "http://localhost:4566",
		Region:     "us-east-1",
		AccountID:  "111111111111",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Passed:     2,
		Failed:     1,
	}
}

func TestRecordAndQueryRun(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	cases := []CaseRecord{
		{TestID: "tests/aws/test_sts.py::TestSTS::test_a", Status: StatusPassed, Duration: 120 * time.Millisecond},
		{TestID: "tests/aws/test_sts.py::TestSTS::test_b", Status: StatusFailed, Detail: "$.Account: <account-id> != 999988887777"},
		{TestID: "tests/aws/test_sts.py::TestSTS::test_c", Status: StatusPassed},
	}
	if err := h.RecordRun(ctx, sampleRun("run-1", started), cases); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := h.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-1" || r.Passed != 2 || r.Failed != 1 {
		t.Fatalf("unexpected run: %+v", r)
	}
	if !r.StartedAt.Equal(started) {
		t.Fatalf("StartedAt = %v, want %v", r.StartedAt, started)
	}

	got, err := h.CasesForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("CasesForRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("cases = %d, want 3", len(got))
	}
	if got[1].Status != StatusFailed || got[1].Detail == "" {
		t.Fatalf("failed case not persisted: %+v", got[1])
	}
	if got[0].Duration != 120*time.Millisecond {
		t.Fatalf("Duration = %v", got[0].Duration)
	}
}

func TestRecentRunsFiltersBySuiteAndOrders(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	first := sampleRun("run-1", base)
	second := sampleRun("run-2", base.Add(time.Hour))
	other := sampleRun("run-3", base.Add(2*time.Hour))
	other.Suite = "tests/aws/test_kms.py"
	for _, r := range []Run{first, second, other} {
		if err := h.RecordRun(ctx, r, nil); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", r.RunID, err)
		}
	}

	runs, err := h.RecentRuns(ctx, "tests/aws/test_sts.py", 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("unexpected order or filter: %v", runs)
	}

	runs, err = h.RecentRuns(ctx, "", 1)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-3" {
		t.Fatalf("limit not applied: %v", runs)
	}
}

func TestLastFailure(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	testID := "tests/aws/test_sts.py::TestSTS::test_b"

	if err := h.RecordRun(ctx, sampleRun("run-1", base), []CaseRecord{
		{TestID: testID, Status: StatusFailed, Detail: "first failure"},
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := h.RecordRun(ctx, sampleRun("run-2", base.Add(time.Hour)), []CaseRecord{
		{TestID: testID, Status: StatusFailed, Detail: "second failure"},
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	c, err := h.LastFailure(ctx, testID)
	if err != nil {
		t.Fatalf("LastFailure failed: %v", err)
	}
	if c.RunID != "run-2" || c.Detail != "second failure" {
		t.Fatalf("unexpected failure record: %+v", c)
	}

	if _, err := h.LastFailure(ctx, "never-failed"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	run := sampleRun("run-1", time.Now().UTC())

	if err := h.RecordRun(ctx, run, nil); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := h.RecordRun(ctx, run, nil); err == nil {
		t.Fatalf("expected duplicate run_id to be rejected")
	}
}

func TestPruneOlderThanCascades(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := sampleRun("run-old", base)
	recent := sampleRun("run-new", base.AddDate(0, 6, 0))
	for _, r := range []Run{old, recent} {
		if err := h.RecordRun(ctx, r, []CaseRecord{
			{TestID: r.RunID + "::case", Status: StatusPassed},
		}); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	n, err := h.PruneOlderThan(ctx, base.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d runs, want 1", n)
	}

	if cases, _ := h.CasesForRun(ctx, "run-old"); len(cases) != 0 {
		t.Fatalf("cascade delete left %d cases", len(cases))
	}
	if cases, _ := h.CasesForRun(ctx, "run-new"); len(cases) != 1 {
		t.Fatalf("recent run lost its cases")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h.Close()
}

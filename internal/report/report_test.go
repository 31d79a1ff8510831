package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snapmatch/internal/logging"
	"snapmatch/internal/store"
)

func TestMain(m *testing.M) {
	logging.InitNop()
	m.Run()
}

func seedHistory(t *testing.T) *store.History {
	t.Helper()
	h, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	ctx := context.Background()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	green := store.Run{
		RunID: "run-green-12345", Suite: "tests/aws/test_kms.py",
		Target: "http://localhost:4566", Region: "us-east-1", AccountID: "111111111111",
		StartedAt: base, FinishedAt: base.Add(time.Minute), Passed: 3,
	}
	if err := h.RecordRun(ctx, green, []store.CaseRecord{
		{TestID: "tests/aws/test_kms.py::test_create_key", Status: store.StatusPassed},
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	red := store.Run{
		RunID: "run-red-678901", Suite: "tests/aws/test_sts.py",
		Target: "http://localhost:4566", Region: "us-east-1", AccountID: "111111111111",
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
		Passed: 1, Failed: 1,
	}
	if err := h.RecordRun(ctx, red, []store.CaseRecord{
		{TestID: "tests/aws/test_sts.py::test_ok", Status: store.StatusPassed},
		{TestID: "tests/aws/test_sts.py::test_identity", Status: store.StatusFailed,
			Detail: "$.Account: <account-id> != 999988887777"},
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	return h
}

func TestBuildCollectsFailures(t *testing.T) {
	h := seedHistory(t)
	s, err := Build(context.Background(), h, "", 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(s.Runs))
	}
	// Newest first.
	if s.Runs[0].Run.RunID != "run-red-678901" {
		t.Fatalf("unexpected order: %s first", s.Runs[0].Run.RunID)
	}
	if len(s.Runs[0].Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(s.Runs[0].Failures))
	}
	if len(s.Runs[1].Failures) != 0 {
		t.Fatalf("green run has failures: %v", s.Runs[1].Failures)
	}
}

func TestBuildFiltersBySuite(t *testing.T) {
	h := seedHistory(t)
	s, err := Build(context.Background(), h, "tests/aws/test_kms.py", 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Runs) != 1 || s.Runs[0].Run.Suite != "tests/aws/test_kms.py" {
		t.Fatalf("filter not applied: %+v", s.Runs)
	}
}

func TestMarkdownContainsRunsAndFailureDetail(t *testing.T) {
	h := seedHistory(t)
	s, err := Build(context.Background(), h, "", 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	md := s.Markdown()
	for _, want := range []string{
		"# Snapshot verification report",
		"tests/aws/test_sts.py",
		"tests/aws/test_kms.py",
		"## Failures in tests/aws/test_sts.py",
		"test_identity",
		"<account-id> != 999988887777",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Failures in tests/aws/test_kms.py") {
		t.Errorf("green run should have no failure section")
	}
}

func TestMarkdownEmptyHistory(t *testing.T) {
	h, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer h.Close()

	s, err := Build(context.Background(), h, "", 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(s.Markdown(), "No recorded runs.") {
		t.Fatalf("empty report text missing:\n%s", s.Markdown())
	}
}

func TestRenderFallsBackToMarkdown(t *testing.T) {
	h := seedHistory(t)
	s, err := Build(context.Background(), h, "", 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	out := s.Render(80)
	if out == "" {
		t.Fatalf("Render produced nothing")
	}
	if !strings.Contains(out, "test_identity") {
		t.Fatalf("render lost content:\n%s", out)
	}
}

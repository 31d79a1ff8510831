// Package report builds markdown summaries of recent verification
// runs and renders them for the terminal.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"snapmatch/internal/store"

	"github.com/charmbracelet/glamour"
)

// Summary aggregates the runs and verdicts a report covers.
type Summary struct {
	GeneratedAt time.Time
	Runs        []RunSummary
}

// RunSummary is one run plus its failed cases.
type RunSummary struct {
	Run      store.Run
	Failures []store.CaseRecord
}

// Build assembles a summary of the most recent runs, optionally
// filtered by suite.
func Build(ctx context.Context, h *store.History, suite string, limit int) (*Summary, error) {
	runs, err := h.RecentRuns(ctx, suite, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent runs: %w", err)
	}

	s := &Summary{GeneratedAt: time.Now().UTC()}
	for _, run := range runs {
		rs := RunSummary{Run: run}
		if run.Failed > 0 {
			cases, err := h.CasesForRun(ctx, run.RunID)
			if err != nil {
				return nil, fmt.Errorf("failed to load cases for run %s: %w", run.RunID, err)
			}
			for _, c := range cases {
				if c.Status == store.StatusFailed || c.Status == store.StatusError {
					rs.Failures = append(rs.Failures, c)
				}
			}
		}
		s.Runs = append(s.Runs, rs)
	}
	return s, nil
}

// Markdown renders the summary as a markdown document.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("# Snapshot verification report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	if len(s.Runs) == 0 {
		b.WriteString("No recorded runs.\n")
		return b.String()
	}

	b.WriteString("| Run | Suite | Target | Passed | Failed | Skipped | Finished |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, rs := range s.Runs {
		r := rs.Run
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %d | %s |\n",
			shortID(r.RunID), r.Suite, r.Target,
			r.Passed, r.Failed, r.Skipped,
			r.FinishedAt.Format("2006-01-02 15:04:05"))
	}

	for _, rs := range s.Runs {
		if len(rs.Failures) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## Failures in %s (%s)\n\n", rs.Run.Suite, shortID(rs.Run.RunID))
		for _, c := range rs.Failures {
			fmt.Fprintf(&b, "### %s\n\n", c.TestID)
			if c.Detail != "" {
				b.WriteString("```\n")
				b.WriteString(strings.TrimRight(c.Detail, "\n"))
				b.WriteString("\n```\n\n")
			}
		}
	}
	return b.String()
}

// Render renders the markdown summary with terminal styling. wordWrap
// of 0 uses the default width. Falls back to plain markdown when the
// renderer cannot be built (e.g. no TTY information).
func (s *Summary) Render(wordWrap int) string {
	md := s.Markdown()
	if wordWrap <= 0 {
		wordWrap = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

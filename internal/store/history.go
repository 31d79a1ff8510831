// Package store persists verification run history in SQLite so the
// report and diff commands can query past outcomes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"snapmatch/internal/logging"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	suite       TEXT NOT NULL,
	target      TEXT NOT NULL,
	region      TEXT NOT NULL,
	account_id  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite, started_at DESC);

CREATE TABLE IF NOT EXISTS case_results (
	run_id   TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	test_id  TEXT NOT NULL,
	status   TEXT NOT NULL CHECK (status IN ('passed', 'failed', 'skipped', 'error')),
	detail   TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, test_id)
);
CREATE INDEX IF NOT EXISTS idx_case_results_test ON case_results(test_id);
`

// Case status values persisted in case_results.status.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Run is one persisted verification run.
type Run struct {
	RunID      string
	Suite      string
	Target     string
	Region     string
	AccountID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Passed     int
	Failed     int
	Skipped    int
}

// CaseRecord is the persisted verdict of one case within a run. Detail
// carries the rendered mismatch summary or error text for failed cases.
type CaseRecord struct {
	RunID    string
	TestID   string
	Status   string
	Detail   string
	Duration time.Duration
}

// History is the SQLite-backed run history.
type History struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the history database at path and
// applies the schema.
func Open(path string) (*History, error) {
	log := logging.Get(logging.CategoryStore)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugw("pragma failed", "pragma", pragma, "error", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Debugw("opened history database", "path", path)
	return &History{db: db}, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// RecordRun persists a run and its case verdicts in one transaction.
func (h *History) RecordRun(ctx context.Context, run Run, cases []CaseRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, suite, target, region, account_id,
			started_at, finished_at, passed, failed, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Suite, run.Target, run.Region, run.AccountID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Passed, run.Failed, run.Skipped)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_results (run_id, test_id, status, detail, duration_ms)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare case insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range cases {
		if _, err := stmt.ExecContext(ctx, run.RunID, c.TestID, c.Status,
			c.Detail, c.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("failed to insert case %s: %w", c.TestID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.RunID, err)
	}
	logging.Get(logging.CategoryStore).Infow("recorded run",
		"run", run.RunID, "suite", run.Suite,
		"passed", run.Passed, "failed", run.Failed, "skipped", run.Skipped)
	return nil
}

// RecentRuns returns the most recent runs, newest first. A non-empty
// suite filters to that suite.
func (h *History) RecentRuns(ctx context.Context, suite string, limit int) ([]Run, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, suite, target, region, account_id,
			started_at, finished_at, passed, failed, skipped
		FROM runs`
	args := []any{}
	if suite != "" {
		query += ` WHERE suite = ?`
		args = append(args, suite)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.Suite, &r.Target, &r.Region, &r.AccountID,
			&started, &finished, &r.Passed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("bad started_at for run %s: %w", r.RunID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("bad finished_at for run %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CasesForRun returns the case verdicts of one run, ordered by test ID.
func (h *History) CasesForRun(ctx context.Context, runID string) ([]CaseRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rows, err := h.db.QueryContext(ctx, `
		SELECT run_id, test_id, status, detail, duration_ms
		FROM case_results WHERE run_id = ? ORDER BY test_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases for run %s: %w", runID, err)
	}
	defer rows.Close()

	var cases []CaseRecord
	for rows.Next() {
		var c CaseRecord
		var ms int64
		if err := rows.Scan(&c.RunID, &c.TestID, &c.Status, &c.Detail, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// LastFailure returns the most recent failed or errored verdict for a
// test ID, or sql.ErrNoRows if it has never failed.
func (h *History) LastFailure(ctx context.Context, testID string) (*CaseRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	row := h.db.QueryRowContext(ctx, `
		SELECT c.run_id, c.test_id, c.status, c.detail, c.duration_ms
		FROM case_results c JOIN runs r ON r.run_id = c.run_id
		WHERE c.test_id = ? AND c.status IN ('failed', 'error')
		ORDER BY r.started_at DESC LIMIT 1`, testID)

	var c CaseRecord
	var ms int64
	if err := row.Scan(&c.RunID, &c.TestID, &c.Status, &c.Detail, &ms); err != nil {
		return nil, err
	}
	c.Duration = time.Duration(ms) * time.Millisecond
	return &c, nil
}

// PruneOlderThan deletes runs (and their cases, via cascade) finished
// before the cutoff. Returns the number of runs removed.
func (h *History) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

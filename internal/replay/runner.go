package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snapmatch/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultStepTimeout = 30 * time.Second

// CaseResult holds the captured sub-results of one replayed case.
type CaseResult struct {
	CaseID   string
	TestID   string
	Skipped  bool
	Err      error
	Results  map[string]any
	Duration time.Duration
}

// RunResult is the outcome of replaying a whole suite.
type RunResult struct {
	RunID      string
	Suite      string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Cases      []CaseResult
}

// Runner replays suites against a target base URL.
type Runner struct {
	target      string
	client      *http.Client
	parallelism int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClient overrides the HTTP client (tests inject httptest clients).
func WithClient(c *http.Client) RunnerOption {
	return func(r *Runner) { r.client = c }
}

// WithParallelism bounds concurrent case execution.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// NewRunner returns a Runner for a target base URL.
func NewRunner(target string, opts ...RunnerOption) *Runner {
	r := &Runner{
		target:      strings.TrimRight(target, "/"),
		client:      &http.Client{},
		parallelism: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run replays every case of the suite. Cases run concurrently up to
// the configured parallelism; a failing case is reported in its
// CaseResult and never aborts sibling cases. Results come back in
// suite order regardless of completion order.
func (r *Runner) Run(ctx context.Context, s *Suite) (*RunResult, error) {
	run := &RunResult{
		RunID:     uuid.NewString(),
		Suite:     s.Name,
		Target:    r.target,
		StartedAt: time.Now().UTC(),
		Cases:     make([]CaseResult, len(s.Cases)),
	}
	log := logging.Get(logging.CategoryReplay)
	log.Infow("replaying suite", "suite", s.Name, "cases", len(s.Cases),
		"target", r.target, "run", run.RunID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range s.Cases {
		g.Go(func() error {
			c := s.Cases[i]
			res := CaseResult{CaseID: c.ID, TestID: s.TestID(c)}
			switch {
			case c.Skip:
				res.Skipped = true
			case len(c.Steps) == 0:
				res.Skipped = true
				log.Debugw("case has no steps, skipping", "case", c.ID)
			default:
				start := time.Now()
				res.Results, res.Err = r.executeCase(gctx, c)
				res.Duration = time.Since(start)
			}
			run.Cases[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.FinishedAt = time.Now().UTC()
	return run, nil
}

// executeCase runs the case's steps in order. Steps within one case
// are sequential; later steps often depend on server state the earlier
// ones created.
func (r *Runner) executeCase(ctx context.Context, c Case) (map[string]any, error) {
	results := make(map[string]any, len(c.Steps))
	for _, st := range c.Steps {
		captured, err := r.executeStep(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", st.Name, err)
		}
		results[st.Name] = captured
	}
	return results, nil
}

func (r *Runner) executeStep(ctx context.Context, st Step) (any, error) {
	timeout := defaultStepTimeout
	if st.TimeoutSec > 0 {
		timeout = time.Duration(st.TimeoutSec) * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if st.Body != "" {
		body = strings.NewReader(st.Body)
	}
	url := r.target + "/" + strings.TrimLeft(st.Path, "/")
	req, err := http.NewRequestWithContext(sctx, strings.ToUpper(st.Method), url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range st.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && st.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if st.ExpectStatus != 0 && resp.StatusCode != st.ExpectStatus {
		return nil, fmt.Errorf("status %d, expected %d", resp.StatusCode, st.ExpectStatus)
	}

	return capture(resp, data), nil
}

// capture shapes a response the way the recorded fixtures store it:
// the decoded body (error responses included, as data) plus a
// ResponseMetadata block. Non-JSON bodies are captured as raw strings.
func capture(resp *http.Response, data []byte) any {
	result := make(map[string]any)

	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err == nil {
			if m, ok := decoded.(map[string]any); ok {
				result = m
			} else {
				result["Payload"] = decoded
			}
		} else {
			result["RawBody"] = string(data)
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for k, vals := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	meta := map[string]any{
		"HTTPStatusCode": resp.StatusCode,
		"HTTPHeaders":    headers,
	}
	if reqID := resp.Header.Get("x-amzn-requestid"); reqID != "" {
		meta["RequestId"] = reqID
	}
	result["ResponseMetadata"] = meta
	return result
}

package replay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/caller-identity", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-amzn-requestid", "req-123")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Account": "111111111111",
			"Arn":     "arn:aws:sts::111111111111:assumed-role/x",
		})
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Error": map[string]any{
				"Code":    "ValidationError",
				"Message": "bad input",
				"Type":    "Sender",
			},
		})
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCapturesResponseMetadata(t *testing.T) {
	srv := newTestServer(t)
	s := &Suite{Name: "suite", Cases: []Case{{
		ID: "identity",
		Steps: []Step{{
			Name: "get-caller-identity", Method: "GET", Path: "/caller-identity",
			ExpectStatus: 200,
		}},
	}}}

	run, err := NewRunner(srv.URL).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.RunID == "" {
		t.Fatalf("missing run ID")
	}
	if len(run.Cases) != 1 {
		t.Fatalf("cases = %d", len(run.Cases))
	}

	cr := run.Cases[0]
	if cr.Err != nil {
		t.Fatalf("case error: %v", cr.Err)
	}
	step, ok := cr.Results["get-caller-identity"].(map[string]any)
	if !ok {
		t.Fatalf("missing step result: %v", cr.Results)
	}
	if step["Account"] != "111111111111" {
		t.Errorf("Account = %v", step["Account"])
	}
	meta, ok := step["ResponseMetadata"].(map[string]any)
	if !ok {
		t.Fatalf("missing ResponseMetadata: %v", step)
	}
	if meta["HTTPStatusCode"] != 200 {
		t.Errorf("HTTPStatusCode = %v", meta["HTTPStatusCode"])
	}
	if meta["RequestId"] != "req-123" {
		t.Errorf("RequestId = %v", meta["RequestId"])
	}
	headers, ok := meta["HTTPHeaders"].(map[string]any)
	if !ok || headers["x-amzn-requestid"] != "req-123" {
		t.Errorf("HTTPHeaders = %v", meta["HTTPHeaders"])
	}
}

func TestRunCapturesErrorResponsesAsData(t *testing.T) {
	srv := newTestServer(t)
	s := &Suite{Name: "suite", Cases: []Case{{
		ID:    "bad-request",
		Steps: []Step{{Name: "err", Method: "POST", Path: "/error"}},
	}}}

	run, err := NewRunner(srv.URL).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	cr := run.Cases[0]
	if cr.Err != nil {
		t.Fatalf("error responses are data, not failures: %v", cr.Err)
	}
	step := cr.Results["err"].(map[string]any)
	errBlock, ok := step["Error"].(map[string]any)
	if !ok || errBlock["Code"] != "ValidationError" {
		t.Fatalf("Error block = %v", step["Error"])
	}
	meta := step["ResponseMetadata"].(map[string]any)
	if meta["HTTPStatusCode"] != 400 {
		t.Errorf("HTTPStatusCode = %v", meta["HTTPStatusCode"])
	}
}

func TestRunExpectStatusMismatchFailsCase(t *testing.T) {
	srv := newTestServer(t)
	s := &Suite{Name: "suite", Cases: []Case{
		{ID: "fails", Steps: []Step{{Name: "err", Method: "POST", Path: "/error", ExpectStatus: 200}}},
		{ID: "passes", Steps: []Step{{Name: "ok", Method: "GET", Path: "/caller-identity"}}},
	}}

	run, err := NewRunner(srv.URL).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Cases[0].Err == nil {
		t.Fatalf("expected status mismatch to fail the case")
	}
	if run.Cases[1].Err != nil {
		t.Fatalf("sibling case affected: %v", run.Cases[1].Err)
	}
}

func TestRunNonJSONBodyCapturedRaw(t *testing.T) {
	srv := newTestServer(t)
	s := &Suite{Name: "suite", Cases: []Case{{
		ID:    "plain",
		Steps: []Step{{Name: "get", Method: "GET", Path: "/plain"}},
	}}}

	run, err := NewRunner(srv.URL).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	step := run.Cases[0].Results["get"].(map[string]any)
	if step["RawBody"] != "not json" {
		t.Fatalf("RawBody = %v", step["RawBody"])
	}
}

func TestRunSkipsMarkedAndEmptyCases(t *testing.T) {
	srv := newTestServer(t)
	s := &Suite{Name: "suite", Cases: []Case{
		{ID: "marked", Skip: true, Steps: []Step{{Name: "s", Method: "GET", Path: "/plain"}}},
		{ID: "empty"},
	}}

	run, err := NewRunner(srv.URL).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, cr := range run.Cases {
		if !cr.Skipped {
			t.Errorf("case %s not skipped", cr.CaseID)
		}
	}
}

func TestRunParallelismBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)

	var cases []Case
	for i := 0; i < 8; i++ {
		cases = append(cases, Case{
			ID:    string(rune('a' + i)),
			Steps: []Step{{Name: "s", Method: "GET", Path: "/"}},
		})
	}
	s := &Suite{Name: "suite", Cases: cases}

	if _, err := NewRunner(srv.URL, WithParallelism(2)).Run(context.Background(), s); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("peak in-flight = %d, want <= 2", peak.Load())
	}
}

func TestRunConnectionErrorFailsCaseOnly(t *testing.T) {
	s := &Suite{Name: "suite", Cases: []Case{{
		ID:    "unreachable",
		Steps: []Step{{Name: "s", Method: "GET", Path: "/", TimeoutSec: 1}},
	}}}

	run, err := NewRunner("http://127.0.0.1:1").Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Cases[0].Err == nil {
		t.Fatalf("expected connection error in case result")
	}
}

// Package snaptest is the in-process snapshot testing API. A session
// collects named results during a Go test and verifies them against
// the recorded snapshot file at the end; setting SNAPSHOT_UPDATE
// re-records instead of verifying.
//
//	func TestCreateKey(t *testing.T) {
//		snap := snaptest.New(t, "testdata", snaptest.WithSuite("kms"))
//		snap.AddTransformer(transform.KeyValue{Key: "KeyId", Name: "key-id", Reference: true})
//		out := callCreateKey(t)
//		snap.Match("create-key", out)
//	}
package snaptest

import (
	"os"
	"strings"
	"testing"

	"snapmatch/internal/snapshot"
	"snapmatch/internal/transform"
	"snapmatch/internal/verify"
)

// UpdateEnv is the environment variable that switches sessions from
// verifying to re-recording.
const UpdateEnv = "SNAPSHOT_UPDATE"

const (
	defaultSuite   = "snaptest"
	defaultRegion  = "us-east-1"
	defaultAccount = "111111111111"
)

// Session accumulates matched values for one test and settles them
// against the snapshot file when the test finishes.
type Session struct {
	t      testing.TB
	dir    string
	suite  string
	testID string

	chain     *transform.Chain
	skipPaths []string
	matched   map[string]any

	update bool
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithSuite sets the suite name, which names the snapshot file
// (<suite>.snapshot.json). Defaults to "snaptest".
func WithSuite(name string) Option {
	return func(s *Session) { s.suite = name }
}

// WithTestID overrides the test identifier; defaults to
// <suite>::<t.Name()> with subtest slashes preserved.
func WithTestID(id string) Option {
	return func(s *Session) { s.testID = id }
}

// WithUpdate forces re-record mode regardless of SNAPSHOT_UPDATE.
func WithUpdate() Option {
	return func(s *Session) { s.update = true }
}

// WithCommonDefaults sets the region and account ID substituted by the
// common transformer set.
func WithCommonDefaults(region, accountID string) Option {
	return func(s *Session) {
		s.chain = transform.NewChain().Use(transform.Common(region, accountID))
	}
}

// New starts a session. Verification (or re-recording) runs in a test
// cleanup, so simply letting the test return settles the snapshot.
func New(t testing.TB, dir string, opts ...Option) *Session {
	t.Helper()
	s := &Session{
		t:       t,
		dir:     dir,
		suite:   defaultSuite,
		chain:   transform.NewChain().Use(transform.Common(defaultRegion, defaultAccount)),
		matched: make(map[string]any),
		update:  os.Getenv(UpdateEnv) != "",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.testID == "" {
		s.testID = s.suite + "::" + t.Name()
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// AddTransformer registers a tree transformer applied to every
// matched value at settle time.
func (s *Session) AddTransformer(tr transform.Transformer) *Session {
	s.chain.Add(tr)
	return s
}

// AddRawTransformer registers a serialized-document transformer.
func (s *Session) AddRawTransformer(tr transform.RawTransformer) *Session {
	s.chain.AddRaw(tr)
	return s
}

// SkipPaths excludes jsonpaths from comparison on both sides.
func (s *Session) SkipPaths(paths ...string) *Session {
	for _, p := range paths {
		if err := transform.ValidatePath(p); err != nil {
			s.t.Fatalf("snaptest: bad skip path %q: %v", p, err)
		}
	}
	s.skipPaths = append(s.skipPaths, paths...)
	return s
}

// Match records a named value for settlement. Matching the same key
// twice is a test bug and fails immediately.
func (s *Session) Match(key string, value any) {
	s.t.Helper()
	if s.closed {
		s.t.Fatalf("snaptest: Match(%q) after session closed", key)
	}
	if _, dup := s.matched[key]; dup {
		s.t.Fatalf("snaptest: duplicate match key %q", key)
	}
	s.matched[key] = value
}

// Close settles the session: verify against the recorded entry, or
// re-record when update mode is on. Idempotent; New arranges for it to
// run as a test cleanup.
func (s *Session) Close() {
	s.t.Helper()
	if s.closed {
		return
	}
	s.closed = true
	if len(s.matched) == 0 {
		return
	}

	path := snapshot.PathForSuite(s.dir, s.suite)
	file, err := snapshot.Load(path)
	if err != nil {
		s.t.Errorf("snaptest: failed to load %s: %v", path, err)
		return
	}

	v := verify.New(verify.WithChain(s.chain), verify.WithSkipPaths(s.skipPaths...))

	if s.update {
		rec, err := v.Update(s.matched)
		if err != nil {
			s.t.Errorf("snaptest: failed to normalize for update: %v", err)
			return
		}
		file.Put(s.testID, rec)
		if err := file.Save(); err != nil {
			s.t.Errorf("snaptest: failed to save %s: %v", path, err)
			return
		}
		s.t.Logf("snaptest: recorded %s (%d keys)", s.testID, len(s.matched))
		return
	}

	rec, ok := file.Get(s.testID)
	if !ok {
		s.t.Errorf("snaptest: no recorded snapshot for %s in %s; run with %s=1 to record",
			s.testID, path, UpdateEnv)
		return
	}
	res, err := v.Verify(s.testID, rec, s.matched)
	if err != nil {
		s.t.Errorf("snaptest: verification error: %v", err)
		return
	}
	if res.Passed {
		return
	}

	var b strings.Builder
	for _, key := range res.MissingKeys {
		b.WriteString("  recorded key never matched: " + key + "\n")
	}
	for _, key := range res.ExtraKeys {
		b.WriteString("  matched key not in snapshot: " + key + "\n")
	}
	for _, m := range res.Mismatches {
		b.WriteString("  " + m.String() + "\n")
	}
	s.t.Errorf("snaptest: %s does not match its snapshot:\n%s", s.testID, b.String())
}

// Package verify compares replayed results against recorded snapshots.
// The actual side is normalized through the transformer chain, skip
// paths are pruned from both sides, and the remainder must reproduce
// the recorded JSON byte for byte.
package verify

import (
	"bytes"
	"fmt"
	"sort"

	"snapmatch/internal/logging"
	"snapmatch/internal/snapshot"
	"snapmatch/internal/transform"
)

// Mismatch is one divergent leaf between recorded and actual content.
type Mismatch struct {
	Key      string // match key inside recorded-content
	Path     string // path below the match key, "$" for the whole value
	Recorded any
	Actual   any
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: recorded %v, actual %v", m.Key, m.Path, m.Recorded, m.Actual)
}

// Result is the verdict for one test identifier.
type Result struct {
	TestID     string
	Passed     bool
	Mismatches []Mismatch
	// MissingKeys are present in recorded-content but not replayed;
	// ExtraKeys the reverse. Either fails verification.
	MissingKeys []string
	ExtraKeys   []string
}

// Verifier normalizes and compares one snapshot record.
type Verifier struct {
	chain     *transform.Chain
	skipPaths []string
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithChain sets the transformer chain; defaults to an empty chain.
func WithChain(c *transform.Chain) Option {
	return func(v *Verifier) { v.chain = c }
}

// WithSkipPaths excludes jsonpaths from comparison on both sides.
func WithSkipPaths(paths ...string) Option {
	return func(v *Verifier) { v.skipPaths = append(v.skipPaths, paths...) }
}

// New returns a Verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{chain: transform.NewChain()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Normalize applies the transformer chain to a set of named actual
// results in deterministic (sorted match key) order, so token indices
// come out the same on every run.
func (v *Verifier) Normalize(actual map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(actual))
	for k := range actual {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(actual))
	for _, k := range keys {
		normalized, err := v.chain.Apply(actual[k])
		if err != nil {
			return nil, fmt.Errorf("failed to normalize %q: %w", k, err)
		}
		out[k] = normalized
	}
	return out, nil
}

// Verify compares actual results against a recorded entry.
func (v *Verifier) Verify(testID string, rec *snapshot.Record, actual map[string]any) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("verify %s: %w", testID, snapshot.ErrNotFound)
	}

	normalized, err := v.Normalize(actual)
	if err != nil {
		return nil, err
	}

	recorded, err := v.prune(rec.RecordedContent)
	if err != nil {
		return nil, err
	}
	pruned, err := v.prune(normalized)
	if err != nil {
		return nil, err
	}

	res := &Result{TestID: testID}
	for _, key := range sortedKeys(recorded) {
		if _, ok := pruned[key]; !ok {
			res.MissingKeys = append(res.MissingKeys, key)
		}
	}
	for _, key := range sortedKeys(pruned) {
		if _, ok := recorded[key]; !ok {
			res.ExtraKeys = append(res.ExtraKeys, key)
		}
	}

	for _, key := range sortedKeys(recorded) {
		actualVal, ok := pruned[key]
		if !ok {
			continue
		}
		if equalCanonical(recorded[key], actualVal) {
			continue
		}
		res.Mismatches = append(res.Mismatches, diffLeaves(key, "$", recorded[key], actualVal)...)
	}

	res.Passed = len(res.Mismatches) == 0 && len(res.MissingKeys) == 0 && len(res.ExtraKeys) == 0
	log := logging.Get(logging.CategoryVerify)
	if res.Passed {
		log.Debugw("snapshot verified", "test", testID, "keys", len(recorded))
	} else {
		log.Infow("snapshot mismatch", "test", testID,
			"mismatches", len(res.Mismatches),
			"missing", len(res.MissingKeys), "extra", len(res.ExtraKeys))
	}
	return res, nil
}

// Update produces a fresh record from actual results: normalized
// content and a new recorded-date. Skip paths are not pruned here; the
// stored file keeps the full shape and pruning happens at compare time.
func (v *Verifier) Update(actual map[string]any) (*snapshot.Record, error) {
	normalized, err := v.Normalize(actual)
	if err != nil {
		return nil, err
	}
	return &snapshot.Record{
		RecordedContent: normalized,
		RecordedDate:    snapshot.Now(),
	}, nil
}

func (v *Verifier) prune(content map[string]any) (map[string]any, error) {
	if len(v.skipPaths) == 0 {
		return content, nil
	}
	pruned, err := transform.PrunePaths(content, v.skipPaths)
	if err != nil {
		return nil, err
	}
	out, ok := pruned.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("skip paths removed the content root")
	}
	return out, nil
}

// equalCanonical is the byte-for-byte property: both values serialize
// to identical canonical JSON.
func equalCanonical(a, b any) bool {
	da, errA := snapshot.MarshalCanonical(a)
	db, errB := snapshot.MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(da, db)
}

// diffLeaves walks both values in parallel collecting leaf mismatches.
func diffLeaves(key, path string, recorded, actual any) []Mismatch {
	switch rec := recorded.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return []Mismatch{{Key: key, Path: path, Recorded: recorded, Actual: actual}}
		}
		var out []Mismatch
		for _, k := range sortedKeys(rec) {
			childPath := path + "." + k
			if av, ok := act[k]; ok {
				out = append(out, diffLeaves(key, childPath, rec[k], av)...)
			} else {
				out = append(out, Mismatch{Key: key, Path: childPath, Recorded: rec[k], Actual: nil})
			}
		}
		for _, k := range sortedKeys(act) {
			if _, ok := rec[k]; !ok {
				out = append(out, Mismatch{Key: key, Path: path + "." + k, Recorded: nil, Actual: act[k]})
			}
		}
		return out
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(rec) {
			return []Mismatch{{Key: key, Path: path, Recorded: recorded, Actual: actual}}
		}
		var out []Mismatch
		for i := range rec {
			out = append(out, diffLeaves(key, fmt.Sprintf("%s[%d]", path, i), rec[i], act[i])...)
		}
		return out
	default:
		if equalCanonical(recorded, actual) {
			return nil
		}
		return []Mismatch{{Key: key, Path: path, Recorded: recorded, Actual: actual}}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

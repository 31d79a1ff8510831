// Package snapshot implements the recorded fixture file format: a JSON
// mapping from fully-qualified test identifiers to records carrying a
// recorded-date and an arbitrary recorded-content value tree.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"snapmatch/internal/logging"
)

// RecordedDateLayout is the human-readable timestamp written into
// recorded-date. Day first, matching the recorded fixtures.
const RecordedDateLayout = "02-01-2006, 15:04:05"

// FileSuffix is appended to a suite name to form its snapshot file name.
const FileSuffix = ".snapshot.json"

// ErrNotFound is returned when a test identifier has no recorded entry.
var ErrNotFound = errors.New("snapshot entry not found")

// Record is one recorded snapshot entry. Field order matters: struct
// fields serialize in declaration order, and the fixture format keys
// records as recorded-content before recorded-date.
type Record struct {
	RecordedContent map[string]any `json:"recorded-content"`
	RecordedDate    string         `json:"recorded-date"`
}

// File is an in-memory handle on one snapshot file.
type File struct {
	path    string
	entries map[string]*Record
}

// PathForSuite returns the snapshot file path for a suite name.
func PathForSuite(dir, suite string) string {
	return filepath.Join(dir, suite+FileSuffix)
}

// Load reads a snapshot file. A missing file yields an empty handle so a
// brand-new suite can be recorded; malformed JSON is a hard error.
// Numbers decode as json.Number so their source text survives a
// re-marshal; float64 would corrupt integers past 2^53 and
// scientific-notation literals.
func Load(path string) (*File, error) {
	f := &File{path: path, entries: make(map[string]*Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategorySnapshot).Debugw("no snapshot file yet", "path", path)
			return f, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&f.entries); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", path, err)
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Len returns the number of recorded entries.
func (f *File) Len() int { return len(f.entries) }

// Get returns the record for a test identifier.
func (f *File) Get(testID string) (*Record, bool) {
	r, ok := f.entries[testID]
	return r, ok
}

// Put inserts or replaces the record for a test identifier. Sibling
// entries in the same file are never touched.
func (f *File) Put(testID string, r *Record) {
	f.entries[testID] = r
}

// Delete removes the record for a test identifier.
func (f *File) Delete(testID string) {
	delete(f.entries, testID)
}

// Keys returns all recorded test identifiers, sorted.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the file atomically: marshal to a temp file in the same
// directory, then rename over the target. Object keys are serialized
// sorted with two-space indent and a trailing newline, so an untouched
// load/save round trip is byte-identical.
func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := MarshalCanonical(f.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	logging.Get(logging.CategorySnapshot).Debugw("snapshot file saved",
		"path", f.path, "entries", len(f.entries))
	return nil
}

// MarshalCanonical serializes a value with sorted object keys, two-space
// indent and a trailing newline. HTML escaping is off so placeholder
// tokens like <uuid:1> survive verbatim. This is the byte format both
// the stored files and the comparison in verify rely on.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Now returns the current UTC time formatted for recorded-date.
func Now() string {
	return time.Now().UTC().Format(RecordedDateLayout)
}

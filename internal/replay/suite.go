// Package replay executes YAML-defined test suites against a target
// endpoint and captures responses in the shape the snapshot files
// record them.
package replay

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"snapmatch/internal/transform"

	"gopkg.in/yaml.v3"
)

// Suite is a collection of snapshot test cases.
type Suite struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`
	Cases   []Case `yaml:"cases"`
}

// Case is a single test: an ordered list of HTTP calls whose responses
// become the named sub-results of one snapshot record.
type Case struct {
	ID           string            `yaml:"id"`
	Skip         bool              `yaml:"skip,omitempty"`
	SkipPaths    []string          `yaml:"skip_paths,omitempty"`
	Presets      []string          `yaml:"presets,omitempty"`
	Transformers []TransformerSpec `yaml:"transformers,omitempty"`
	Steps        []Step            `yaml:"steps"`
}

// TransformerSpec declares one transformer in suite YAML.
type TransformerSpec struct {
	Type        string `yaml:"type"` // key_value, regex, jsonpath
	Key         string `yaml:"key,omitempty"`
	Pattern     string `yaml:"pattern,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Replacement string `yaml:"replacement,omitempty"`
	// Reference defaults to true for key_value and jsonpath, matching
	// how the recorded suites use them.
	Reference *bool `yaml:"reference,omitempty"`
}

// Step is one HTTP call within a case.
type Step struct {
	Name         string            `yaml:"name"`
	Method       string            `yaml:"method"`
	Path         string            `yaml:"path"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Body         string            `yaml:"body,omitempty"`
	ExpectStatus int               `yaml:"expect_status,omitempty"`
	TimeoutSec   int               `yaml:"timeout_sec,omitempty"`
}

// LoadSuite reads and validates a suite YAML file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}
	return &s, nil
}

func (s *Suite) validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite name is required")
	}
	seen := make(map[string]bool)
	for i, c := range s.Cases {
		if c.ID == "" {
			return fmt.Errorf("case %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate case id %q", c.ID)
		}
		seen[c.ID] = true

		names := make(map[string]bool)
		for j, st := range c.Steps {
			if st.Name == "" {
				return fmt.Errorf("case %q step %d has no name", c.ID, j)
			}
			if names[st.Name] {
				return fmt.Errorf("case %q has duplicate step name %q", c.ID, st.Name)
			}
			names[st.Name] = true
			if st.Method == "" || st.Path == "" {
				return fmt.Errorf("case %q step %q needs method and path", c.ID, st.Name)
			}
		}
		for _, p := range c.SkipPaths {
			if err := transform.ValidatePath(p); err != nil {
				return fmt.Errorf("case %q: %w", c.ID, err)
			}
		}
		for _, spec := range c.Transformers {
			if err := spec.validate(); err != nil {
				return fmt.Errorf("case %q: %w", c.ID, err)
			}
		}
	}
	return nil
}

func (spec TransformerSpec) validate() error {
	switch spec.Type {
	case "key_value":
		if spec.Key == "" {
			return fmt.Errorf("key_value transformer needs a key")
		}
	case "regex":
		if spec.Pattern == "" {
			return fmt.Errorf("regex transformer needs a pattern")
		}
		if spec.Name == "" && spec.Replacement == "" {
			return fmt.Errorf("regex transformer needs a name or a replacement")
		}
		if _, err := compilePattern(spec.Pattern); err != nil {
			return err
		}
	case "jsonpath":
		if spec.Path == "" || spec.Name == "" {
			return fmt.Errorf("jsonpath transformer needs path and name")
		}
		if err := transform.ValidatePath(spec.Path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown transformer type %q", spec.Type)
	}
	return nil
}

// TestID returns the fully-qualified test identifier for a case,
// mirroring the module-path::test-function keying of the fixtures.
func (s *Suite) TestID(c Case) string {
	return s.Name + "::" + c.ID
}

// Chain builds the transformer chain for a case: the common preset,
// any named presets, then the case's own transformers in order.
func (c Case) Chain(region, accountID string) (*transform.Chain, error) {
	chain := transform.NewChain().Use(transform.Common(region, accountID))
	for _, name := range c.Presets {
		set, ok := transform.PresetByName(name, region, accountID)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", name)
		}
		chain.Use(set)
	}
	for _, spec := range c.Transformers {
		if err := spec.addTo(chain); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func (spec TransformerSpec) addTo(chain *transform.Chain) error {
	ref := true
	if spec.Reference != nil {
		ref = *spec.Reference
	}
	switch spec.Type {
	case "key_value":
		chain.Add(transform.KeyValue{Key: spec.Key, Name: spec.Name, Reference: ref})
	case "regex":
		re, err := compilePattern(spec.Pattern)
		if err != nil {
			return err
		}
		if spec.Replacement != "" {
			chain.AddRaw(transform.Regex{Pattern: re, Replacement: spec.Replacement})
		} else {
			chain.AddRaw(transform.Regex{Pattern: re, Name: spec.Name, Reference: true})
		}
	case "jsonpath":
		chain.Add(transform.JSONPath{Path: spec.Path, Name: spec.Name, Reference: ref})
	default:
		return fmt.Errorf("unknown transformer type %q", spec.Type)
	}
	return nil
}

func compilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("bad regex %q: %w", p, err)
	}
	return re, nil
}

// SuiteNameFromPath derives the suite name from a YAML file name.
func SuiteNameFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".yaml")
	return strings.TrimSuffix(base, ".yml")
}

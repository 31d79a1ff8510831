// Package matrix parses the multi-account / multi-region run dimensions
// and expands them into concrete replay targets.
package matrix

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Matrix declares the account and region dimensions of a run. The
// zero value expands to a single target using the caller's defaults.
type Matrix struct {
	// Accounts lists the account IDs to run against. MultiAccount
	// must be set for more than one to be accepted.
	Accounts []string `yaml:"accounts,omitempty"`
	// Regions lists the regions to run against. MultiRegion must be
	// set for more than one to be accepted.
	Regions []string `yaml:"regions,omitempty"`

	MultiAccount bool `yaml:"multi_account,omitempty"`
	MultiRegion  bool `yaml:"multi_region,omitempty"`
}

// Target is one cell of the expanded account x region cross-product.
type Target struct {
	AccountID string
	Region    string
}

func (t Target) String() string {
	return t.AccountID + "/" + t.Region
}

var (
	accountPattern = regexp.MustCompile(`^[0-9]{12}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-[0-9]$`)
)

// Load reads a matrix YAML file. A missing file yields the zero
// matrix, which expands to the defaults.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matrix{}, nil
		}
		return nil, err
	}
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse matrix file %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid matrix %s: %w", path, err)
	}
	return &m, nil
}

func (m *Matrix) validate() error {
	if len(m.Accounts) > 1 && !m.MultiAccount {
		return fmt.Errorf("%d accounts listed but multi_account is not set", len(m.Accounts))
	}
	if len(m.Regions) > 1 && !m.MultiRegion {
		return fmt.Errorf("%d regions listed but multi_region is not set", len(m.Regions))
	}
	seen := make(map[string]bool)
	for _, a := range m.Accounts {
		if !accountPattern.MatchString(a) {
			return fmt.Errorf("malformed account ID %q", a)
		}
		if seen[a] {
			return fmt.Errorf("duplicate account ID %q", a)
		}
		seen[a] = true
	}
	seen = make(map[string]bool)
	for _, r := range m.Regions {
		if !regionPattern.MatchString(r) {
			return fmt.Errorf("malformed region %q", r)
		}
		if seen[r] {
			return fmt.Errorf("duplicate region %q", r)
		}
		seen[r] = true
	}
	return nil
}

// Expand returns the account x region cross-product, ordered accounts
// outer, regions inner. Empty dimensions fall back to the provided
// defaults so a zero matrix still yields exactly one target.
func (m *Matrix) Expand(defaultAccount, defaultRegion string) []Target {
	accounts := m.Accounts
	if len(accounts) == 0 {
		accounts = []string{defaultAccount}
	}
	regions := m.Regions
	if len(regions) == 0 {
		regions = []string{defaultRegion}
	}

	targets := make([]Target, 0, len(accounts)*len(regions))
	for _, a := range accounts {
		for _, r := range regions {
			targets = append(targets, Target{AccountID: a, Region: r})
		}
	}
	return targets
}

package matrix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeMatrix(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write matrix: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsZeroMatrix(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []Target{{AccountID: "111111111111", Region: "us-east-1"}}
	if diff := cmp.Diff(want, m.Expand("111111111111", "us-east-1")); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCrossProduct(t *testing.T) {
	m, err := Load(writeMatrix(t, `
multi_account: true
multi_region: true
accounts: ["111111111111", "222222222222"]
regions: ["us-east-1", "eu-central-1"]
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []Target{
		{AccountID: "111111111111", Region: "us-east-1"},
		{AccountID: "111111111111", Region: "eu-central-1"},
		{AccountID: "222222222222", Region: "us-east-1"},
		{AccountID: "222222222222", Region: "eu-central-1"},
	}
	if diff := cmp.Diff(want, m.Expand("999999999999", "ap-south-1")); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandPartialDimensionsUseDefaults(t *testing.T) {
	m, err := Load(writeMatrix(t, `
multi_region: true
regions: ["us-east-1", "us-west-2"]
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := m.Expand("111111111111", "us-east-1")
	if len(got) != 2 || got[0].AccountID != "111111111111" || got[1].Region != "us-west-2" {
		t.Fatalf("unexpected targets: %v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"multi account without flag": `accounts: ["111111111111", "222222222222"]`,
		"multi region without flag":  `regions: ["us-east-1", "us-west-2"]`,
		"malformed account":          `{multi_account: true, accounts: ["not-an-account"]}`,
		"malformed region":           `{multi_region: true, regions: ["US-EAST-1"]}`,
		"duplicate account": `multi_account: true
accounts: ["111111111111", "111111111111"]`,
		"duplicate region": `multi_region: true
regions: ["us-east-1", "us-east-1"]`,
	}
	for label, content := range cases {
		if _, err := Load(writeMatrix(t, content)); err == nil {
			t.Errorf("%s: expected error", label)
		}
	}
}

func TestTargetString(t *testing.T) {
	tgt := Target{AccountID: "111111111111", Region: "eu-west-1"}
	if got := tgt.String(); got != "111111111111/eu-west-1" {
		t.Fatalf("String = %q", got)
	}
}

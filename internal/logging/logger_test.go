package logging

import "testing"

func TestGetReturnsSameLoggerPerCategory(t *testing.T) {
	InitNop()

	a := Get(CategoryVerify)
	b := Get(CategoryVerify)
	if a != b {
		t.Fatalf("expected cached logger for category %q", CategoryVerify)
	}

	c := Get(CategoryReplay)
	if a == c {
		t.Fatalf("expected distinct loggers for distinct categories")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"info":    "info",
		"bogus":   "info",
		"":        "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestInitDoesNotError(t *testing.T) {
	if err := Init("debug", false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Init("info", true); err != nil {
		t.Fatalf("Init json failed: %v", err)
	}
	Sync()
	InitNop()
}

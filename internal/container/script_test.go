package container

import (
	"strings"
	"testing"

	"reproserver/internal/connector"
)

func TestBuildRunScriptOrdersByIndex(t *testing.T) {
	params := map[string]connector.ParameterInfo{
		"cmdline_00001": {Value: "echo second"},
		"cmdline_00000": {Value: "echo first"},
		"cmdline_00010": {Value: "echo third"},
		"mode":          {Value: "fast"},
	}

	script, err := BuildRunScript(params, "/reproserver-tools-1")
	if err != nil {
		t.Fatalf("BuildRunScript: %v", err)
	}

	firstIdx := strings.Index(script, "echo first")
	secondIdx := strings.Index(script, "echo second")
	thirdIdx := strings.Index(script, "echo third")
	if !(firstIdx < secondIdx && secondIdx < thirdIdx) {
		t.Fatalf("commands not in ascending index order:\n%s", script)
	}
	if !strings.HasPrefix(script, "set -eu\n") {
		t.Fatalf("script does not start with set -eu:\n%s", script)
	}
}

func TestBuildRunScriptRequiresAtLeastOneCommand(t *testing.T) {
	params := map[string]connector.ParameterInfo{"mode": {Value: "fast"}}
	if _, err := BuildRunScript(params, "/reproserver-tools-1"); err == nil {
		t.Fatal("expected error when no cmdline_ parameters are present")
	}
}

func TestBuildRunScriptRejectsBadIndex(t *testing.T) {
	params := map[string]connector.ParameterInfo{"cmdline_abc": {Value: "echo hi"}}
	if _, err := BuildRunScript(params, "/reproserver-tools-1"); err == nil {
		t.Fatal("expected error for non-numeric cmdline index")
	}
}

func TestBuildRunScriptAppliesWorkdirEnvAndUID(t *testing.T) {
	params := map[string]connector.ParameterInfo{
		"cmdline_00000": {
			Value:       "echo hi",
			Workdir:     "/work/dir with space",
			Environment: map[string]string{"FOO": "bar baz"},
			UID:         1000,
			GID:         1000,
		},
	}

	script, err := BuildRunScript(params, "/reproserver-tools-1")
	if err != nil {
		t.Fatalf("BuildRunScript: %v", err)
	}

	if !strings.Contains(script, "cd '/work/dir with space'") {
		t.Fatalf("expected quoted workdir in script:\n%s", script)
	}
	if !strings.Contains(script, "'FOO=bar baz'") {
		t.Fatalf("expected quoted environment assignment in script:\n%s", script)
	}
	if !strings.Contains(script, "/reproserver-tools-1/gosu 1000:1000 sh -c") {
		t.Fatalf("expected gosu invocation with recorded uid:gid in script:\n%s", script)
	}
}

func TestShellQuoteLeavesSafeWordsBare(t *testing.T) {
	if got := shellQuote("abc123_-."); got != "abc123_-." {
		t.Fatalf("expected safe word to be left bare, got %q", got)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's")
	want := `'it'"'"'s'`
	if got != want {
		t.Fatalf("shellQuote(%q) = %q, want %q", "it's", got, want)
	}
}

package worker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyCause(t *testing.T) {
	tests := []struct {
		text string
		want Cause
	}{
		{"ConnectionRefusedError: [Errno 111] Connection refused", CauseNetwork},
		{"Temporary failure in name resolution", CauseNetwork},
		{"request to https://pypi.org timed out", CauseNetwork},
		{"PermissionError: [Errno 13] Permission denied", CausePolicy},
		{"fetch blocked by cross-origin policy", CausePolicy},
		{"server returned 403 Forbidden", CausePolicy},
		{"No matching distribution found for left-pad", CauseNotFound},
		{"ModuleNotFoundError: No module named 'trellis_worker'", CauseNotFound},
		{"package not found (404) at https://example.com/p.whl", CauseNotFound},
		{"no wheels with a matching platform tag", CauseUnavailable},
		{"numpy is incompatible with this runtime", CauseUnavailable},
		{"everything is on fire", CauseUnknown},
		{"", CauseUnknown},
	}
	for _, tt := range tests {
		if got := classifyCause(tt.text); got != tt.want {
			t.Errorf("classifyCause(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestPhaseRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseSpawn, PhaseRuntime, PhasePackages, PhaseRun} {
		if got := phaseFromString(p.String()); got != p {
			t.Errorf("phaseFromString(%q) = %s, want %s", p.String(), got, p)
		}
	}
	if got := phaseFromString("warble"); got != PhaseRuntime {
		t.Errorf("unknown phase should default to runtime, got %s", got)
	}
}

func TestCauseString(t *testing.T) {
	tests := map[Cause]string{
		CauseUnknown:     "unknown",
		CauseNetwork:     "network",
		CausePolicy:      "policy",
		CauseNotFound:    "not-found",
		CauseUnavailable: "unavailable",
		CauseTimeout:     "timeout",
	}
	for cause, want := range tests {
		if cause.String() != want {
			t.Errorf("Cause(%d).String() = %q, want %q", cause, cause.String(), want)
		}
	}
}

func TestBootstrapErrorClassifiesAndHints(t *testing.T) {
	be := newBootstrapError(PhasePackages, "No matching distribution found for left-pad", "", nil)
	if be.Cause != CauseNotFound {
		t.Fatalf("Cause = %s, want not-found", be.Cause)
	}
	if be.Hint == "" {
		t.Fatal("expected a hint")
	}
	msg := be.Error()
	for _, part := range []string{"packages", "not-found", "left-pad"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}
}

func TestBootstrapErrorClassifiesFromStderr(t *testing.T) {
	be := newBootstrapError(PhaseRuntime, "worker exited during bootstrap",
		"PermissionError: [Errno 13] Permission denied: '/opt/cache'", nil)
	if be.Cause != CausePolicy {
		t.Fatalf("Cause = %s, want policy", be.Cause)
	}
}

func TestSpawnHintNamesInterpreter(t *testing.T) {
	if hint := hintFor(PhaseSpawn, CauseUnknown); !strings.Contains(hint, "interpreter") {
		t.Fatalf("spawn hint should mention the interpreter: %q", hint)
	}
}

func TestBootstrapErrorUnwrap(t *testing.T) {
	cause := errors.New("exec: \"python3\": executable file not found in $PATH")
	be := newBootstrapError(PhaseSpawn, "could not launch python3", "", cause)
	if !errors.Is(be, cause) {
		t.Fatal("BootstrapError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("create: %w", be)
	var got *BootstrapError
	if !errors.As(wrapped, &got) || got.Phase != PhaseSpawn {
		t.Fatalf("errors.As should recover the BootstrapError, got %v", wrapped)
	}
}

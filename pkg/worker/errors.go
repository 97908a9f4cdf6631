package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Worker lifecycle errors.
var (
	// ErrNotReady is returned when the session plane is used before the
	// runtime signaled ready.
	ErrNotReady = errors.New("worker: runtime not ready")
	// ErrTerminated is returned once the runner has been terminated. A
	// terminated runner is never reused; create a fresh one.
	ErrTerminated = errors.New("worker: runner terminated")
	// ErrAlreadyCreated is returned by a second Create on the same runner.
	ErrAlreadyCreated = errors.New("worker: runtime already created")
	// ErrBadSource is returned by Run when the source sets none or more
	// than one of Code, Module and Package.
	ErrBadSource = errors.New("worker: source must set exactly one of Code, Module or Package")
)

// Phase names the bootstrap stage a failure occurred in.
type Phase uint8

const (
	// PhaseSpawn covers launching the interpreter process itself.
	PhaseSpawn Phase = iota
	// PhaseRuntime covers the interpreter's own bootstrap.
	PhaseRuntime
	// PhasePackages covers package resolution and installation.
	PhasePackages
	// PhaseRun covers application execution after ready.
	PhaseRun
)

func (p Phase) String() string {
	switch p {
	case PhaseSpawn:
		return "spawn"
	case PhaseRuntime:
		return "runtime"
	case PhasePackages:
		return "packages"
	case PhaseRun:
		return "run"
	}
	return "unknown"
}

// phaseFromString maps a worker-reported phase name back to a Phase. The
// worker's vocabulary matches String; anything else lands in PhaseRuntime.
func phaseFromString(s string) Phase {
	switch s {
	case "spawn":
		return PhaseSpawn
	case "packages":
		return PhasePackages
	case "run":
		return PhaseRun
	}
	return PhaseRuntime
}

// Cause classifies why a bootstrap stage failed. Failure text from the
// runtime is free-form, so the classification is pattern-based and
// best-effort; CauseUnknown is a valid outcome.
type Cause uint8

const (
	CauseUnknown Cause = iota
	// CauseNetwork: the runtime could not reach a remote host.
	CauseNetwork
	// CausePolicy: the sandbox or a remote host denied the operation.
	CausePolicy
	// CauseNotFound: a package, module or file does not exist.
	CauseNotFound
	// CauseUnavailable: the package exists but has no build for the
	// sandboxed target.
	CauseUnavailable
	// CauseTimeout: bootstrap exceeded its deadline.
	CauseTimeout
)

func (c Cause) String() string {
	switch c {
	case CauseNetwork:
		return "network"
	case CausePolicy:
		return "policy"
	case CauseNotFound:
		return "not-found"
	case CauseUnavailable:
		return "unavailable"
	case CauseTimeout:
		return "timeout"
	}
	return "unknown"
}

// causePatterns drives classifyCause. Order matters: the first matching
// pattern wins, so the more specific buckets come first.
var causePatterns = []struct {
	cause    Cause
	patterns []string
}{
	{CauseUnavailable, []string{
		"no wheels",
		"unsupported platform",
		"not available for this platform",
		"incompatible with",
		"requires a different python",
	}},
	{CauseNotFound, []string{
		"no matching distribution",
		"could not find a version",
		"no module named",
		"not found",
		"no such file",
		"404",
	}},
	{CausePolicy, []string{
		"permission denied",
		"operation not permitted",
		"access denied",
		"forbidden",
		"403",
		"blocked by",
		"cross-origin",
	}},
	{CauseNetwork, []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure in name resolution",
		"tls handshake",
		"timed out",
	}},
}

// classifyCause inspects failure text for known patterns.
func classifyCause(text string) Cause {
	lower := strings.ToLower(text)
	for _, entry := range causePatterns {
		for _, pat := range entry.patterns {
			if strings.Contains(lower, pat) {
				return entry.cause
			}
		}
	}
	return CauseUnknown
}

// hintFor produces the actionable suggestion attached to a BootstrapError.
func hintFor(phase Phase, cause Cause) string {
	if phase == PhaseSpawn {
		return "check that the interpreter is installed and on PATH, or configure it with WithInterpreter"
	}
	switch cause {
	case CauseNetwork:
		return "check network access and the package index URL"
	case CausePolicy:
		return "the sandbox or a remote host denied the request; review its permissions"
	case CauseNotFound:
		return "verify the package name, module path and index URL"
	case CauseUnavailable:
		return "the package has no build for the sandboxed target; pin a compatible version"
	case CauseTimeout:
		return "bootstrap did not finish in time; slow networks may need a larger init timeout"
	}
	return ""
}

// BootstrapError reports a worker lifecycle failure with enough context to
// act on: the stage that failed, a best-effort cause, a suggestion, and the
// tail of the worker's stderr.
type BootstrapError struct {
	Phase   Phase
	Cause   Cause
	Message string
	Hint    string
	Stderr  string
	Err     error
}

// newBootstrapError builds a BootstrapError, classifying the cause from the
// message and stderr and filling in the matching hint.
func newBootstrapError(phase Phase, message, stderr string, wrapped error) *BootstrapError {
	cause := classifyCause(message + "\n" + stderr)
	return &BootstrapError{
		Phase:   phase,
		Cause:   cause,
		Message: message,
		Hint:    hintFor(phase, cause),
		Stderr:  stderr,
		Err:     wrapped,
	}
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("worker %s failed (%s): %s", e.Phase, e.Cause, e.Message)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

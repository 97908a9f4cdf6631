package worker

import (
	"io"
	"time"
)

// killGrace is how long a terminated worker gets to exit after the polite
// signal before it is killed outright.
const killGrace = 2 * time.Second

// process is one running worker interpreter. The platform files provide the
// real implementation; tests substitute an in-memory one.
type process interface {
	// Stdin is the worker's standard input. The bridge writes frames here.
	Stdin() io.Writer
	// Stdout is the worker's standard output. Carries frames only; the
	// worker shim redirects application prints to stderr.
	Stdout() io.Reader
	// Stderr is the worker's standard error, captured for diagnostics.
	Stderr() io.Reader
	// Pid identifies the process for logging.
	Pid() int
	// Kill stops the process and everything it spawned: polite signal
	// first, forced kill after killGrace. Blocks until the process is
	// gone.
	Kill()
	// Wait blocks until the process exits and returns its exit error.
	// Safe to call from multiple goroutines.
	Wait() error
}

// processSpec describes the worker process to launch.
type processSpec struct {
	argv []string
	dir  string
	env  []string
}

// startFunc launches a worker process. The default is the platform
// startProcess; tests inject a fake.
type startFunc func(spec processSpec) (process, error)

package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

// DefaultInitTimeout bounds runtime bootstrap: spawn, interpreter startup
// and package preinstall must all finish within it.
const DefaultInitTimeout = 60 * time.Second

// defaultInterpreter launches the worker shim. The -u flag keeps stdio
// unbuffered so frames flush promptly.
var defaultInterpreter = []string{"python3", "-u", "-m", "trellis_worker"}

// Source is the application code a Run submits. Exactly one of Code, Module
// and Package is set: inline source, a named module with its file contents,
// or a package reference the runner fetches first.
type Source struct {
	Code    string
	Module  string
	Files   map[string]string
	Package string
	// Entry overrides the app entry point, "module:attribute" form.
	Entry string
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterpreter replaces the interpreter argv. Defaults to
// "python3 -u -m trellis_worker".
func WithInterpreter(argv ...string) Option {
	return func(r *Runner) { r.interpreter = argv }
}

// WithDir sets the worker's working directory.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv adds environment variables, visible both to the interpreter
// process and inside the sandbox.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) { r.env = env }
}

// WithPackages lists packages to preinstall during bootstrap.
func WithPackages(pkgs ...string) Option {
	return func(r *Runner) { r.packages = pkgs }
}

// WithIndexURL overrides the package index the runtime installs from.
func WithIndexURL(u string) Option {
	return func(r *Runner) { r.indexURL = u }
}

// WithInitTimeout bounds bootstrap. Defaults to DefaultInitTimeout.
func WithInitTimeout(d time.Duration) Option {
	return func(r *Runner) { r.initTimeout = d }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithFetcher replaces the package fetcher used for Source.Package refs.
func WithFetcher(f PackageFetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// withStart replaces process launching, for tests.
func withStart(fn startFunc) Option {
	return func(r *Runner) { r.start = fn }
}

// Runner owns one sandboxed interpreter: it spawns the process, drives
// bootstrap over the control plane, exposes the session plane as a
// transport.Transport, and tears everything down on Terminate. A Runner is
// single-use: after Terminate (or a failed Create) build a fresh one.
type Runner struct {
	interpreter []string
	dir         string
	env         map[string]string
	packages    []string
	indexURL    string
	initTimeout time.Duration
	logger      *slog.Logger
	fetcher     PackageFetcher
	start       startFunc

	tr     *workerTransport
	stderr *tailBuffer

	mu      sync.Mutex
	proc    process
	bridge  *bridge
	blobs   []string
	phase   Phase
	version string

	created    atomic.Bool
	ready      atomic.Bool
	terminated atomic.Bool

	readyCh chan *protocol.ReadyMessage
	failCh  chan *protocol.ErrorReport
	deathCh chan error
	term    chan struct{}
	streams sync.WaitGroup
}

// NewRunner builds a Runner. Nothing starts until Create.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		interpreter: defaultInterpreter,
		initTimeout: DefaultInitTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		start:       startProcess,
		phase:       PhaseSpawn,
		stderr:      newTailBuffer(8 * 1024),
		readyCh:     make(chan *protocol.ReadyMessage, 1),
		failCh:      make(chan *protocol.ErrorReport, 1),
		deathCh:     make(chan error, 1),
		term:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = NewFetcher(WithFetchLogger(r.logger))
	}
	r.tr = newWorkerTransport(r)
	return r
}

// Create spawns the interpreter, sends the bootstrap parameters and blocks
// until the runtime signals ready, a failure is reported, or the init
// timeout elapses. Any failure terminates the runner.
func (r *Runner) Create(ctx context.Context) error {
	if r.terminated.Load() {
		return ErrTerminated
	}
	if r.created.Swap(true) {
		return ErrAlreadyCreated
	}

	proc, err := r.start(processSpec{argv: r.interpreter, dir: r.dir, env: r.processEnv()})
	if err != nil {
		r.Terminate()
		return newBootstrapError(PhaseSpawn,
			fmt.Sprintf("could not launch %s: %v", r.interpreter[0], err), "", err)
	}
	br := newBridge(proc.Stdin(), proc.Stdout(), r.logger)

	r.mu.Lock()
	r.proc = proc
	r.bridge = br
	r.phase = PhaseRuntime
	r.mu.Unlock()
	if r.terminated.Load() {
		// Terminate raced Create and missed the process.
		proc.Kill()
		return ErrTerminated
	}
	r.logger.Info("worker spawned", "pid", proc.Pid(), "interpreter", r.interpreter[0])

	r.streams.Add(2)
	go r.readFrames(br)
	go r.readStderr(proc.Stderr())
	go r.watch(proc)

	init := protocol.NewInitRequest()
	init.IndexURL = r.indexURL
	init.Packages = r.packages
	init.Env = r.env
	if err := br.sendControl(init); err != nil {
		r.Terminate()
		return newBootstrapError(PhaseRuntime,
			"could not send bootstrap parameters: "+err.Error(), r.stderr.String(), err)
	}

	timer := time.NewTimer(r.initTimeout)
	defer timer.Stop()
	select {
	case ready := <-r.readyCh:
		r.mu.Lock()
		r.version = ready.RuntimeVersion
		r.mu.Unlock()
		r.ready.Store(true)
		r.logger.Info("worker ready", "runtime_version", ready.RuntimeVersion)
		return nil
	case report := <-r.failCh:
		r.Terminate()
		return newBootstrapError(phaseFromString(report.Phase), report.Message, r.stderr.String(), nil)
	case err := <-r.deathCh:
		r.Terminate()
		msg := "worker exited during bootstrap"
		if err != nil {
			msg += ": " + err.Error()
		}
		return newBootstrapError(r.currentPhase(), msg, r.stderr.String(), err)
	case <-timer.C:
		r.Terminate()
		be := newBootstrapError(r.currentPhase(),
			fmt.Sprintf("no ready signal within %s", r.initTimeout), r.stderr.String(), nil)
		be.Cause = CauseTimeout
		be.Hint = hintFor(be.Phase, CauseTimeout)
		return be
	case <-r.term:
		return ErrTerminated
	case <-ctx.Done():
		r.Terminate()
		return ctx.Err()
	}
}

// Run submits application source to the ready runtime. Execution is
// asynchronous: runtime failures after submission surface through the
// session plane or the transport's closed hook, not here.
func (r *Runner) Run(ctx context.Context, src Source) error {
	if r.terminated.Load() {
		return ErrTerminated
	}
	if !r.ready.Load() {
		return ErrNotReady
	}

	req := protocol.NewRunRequest()
	req.Entry = src.Entry
	switch {
	case src.Code != "" && src.Module == "" && src.Package == "":
		req.Code = src.Code
	case src.Module != "" && src.Code == "" && src.Package == "":
		if len(src.Files) == 0 {
			return ErrBadSource
		}
		req.Module = src.Module
		req.Files = src.Files
	case src.Package != "" && src.Code == "" && src.Module == "":
		path, err := r.fetcher.Fetch(ctx, src.Package)
		if err != nil {
			return newBootstrapError(PhasePackages,
				fmt.Sprintf("could not fetch %s: %v", src.Package, err), "", err)
		}
		r.mu.Lock()
		r.blobs = append(r.blobs, path)
		r.mu.Unlock()
		req.Archive = path
	default:
		return ErrBadSource
	}

	r.mu.Lock()
	br := r.bridge
	r.mu.Unlock()
	r.logger.Info("application source submitted",
		"inline", req.Code != "", "module", req.Module, "archive", req.Archive)
	return br.sendControl(req)
}

// Terminate kills the worker process group, removes fetched package blobs
// and severs the session transport. Idempotent.
func (r *Runner) Terminate() {
	if r.terminated.Swap(true) {
		return
	}
	r.ready.Store(false)
	close(r.term)

	r.mu.Lock()
	proc := r.proc
	blobs := r.blobs
	r.blobs = nil
	r.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	for _, path := range blobs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Debug("package blob not removed", "path", path, "error", err)
		}
	}
	r.tr.closeWith(nil)
	r.logger.Info("worker terminated")
}

// Transport returns the session-plane transport. Connect and Send fail with
// ErrNotReady until Create succeeds.
func (r *Runner) Transport() transport.Transport { return r.tr }

// Ready reports whether the runtime finished bootstrapping.
func (r *Runner) Ready() bool { return r.ready.Load() }

// RuntimeVersion reports the interpreter version from the ready signal.
func (r *Runner) RuntimeVersion() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

func (r *Runner) processEnv() []string {
	env := os.Environ()
	for k, v := range r.env {
		env = append(env, k+"="+v)
	}
	return env
}

func (r *Runner) currentPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

func (r *Runner) sendSession(msg protocol.Message) error {
	r.mu.Lock()
	br := r.bridge
	r.mu.Unlock()
	if br == nil {
		return ErrNotReady
	}
	return br.sendSession(msg)
}

func (r *Runner) readFrames(br *bridge) {
	defer r.streams.Done()
	if err := br.run(r); err != nil {
		r.logger.Debug("worker stdout closed", "error", err)
	}
}

func (r *Runner) readStderr(src io.Reader) {
	defer r.streams.Done()
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		r.stderr.WriteLine(line)
		r.logger.Debug("worker stderr", "line", line)
	}
}

// watch reaps the process after both stdio streams drained, then decides
// what the exit means: expected teardown, bootstrap death, or a live
// session losing its peer.
func (r *Runner) watch(proc process) {
	r.streams.Wait()
	err := proc.Wait()
	if r.terminated.Load() {
		return
	}
	if !r.ready.Load() {
		select {
		case r.deathCh <- err:
		default:
		}
		return
	}
	r.ready.Store(false)
	msg := "worker exited unexpectedly"
	if err != nil {
		msg = fmt.Sprintf("worker exited unexpectedly: %v", err)
	}
	r.logger.Error("worker died", "error", err, "stderr", r.stderr.String())
	r.tr.closeWith(errors.New(msg))
}

// onControl routes control-plane messages from the bridge's read goroutine.
func (r *Runner) onControl(msg protocol.ControlMessage) {
	switch m := msg.(type) {
	case *protocol.StatusMessage:
		r.setPhase(phaseFromString(m.Phase))
		r.logger.Info("worker status", "phase", m.Phase, "message", m.Message)
	case *protocol.ReadyMessage:
		select {
		case r.readyCh <- m:
		default:
			r.logger.Warn("duplicate ready signal dropped")
		}
	case *protocol.ErrorReport:
		if !r.ready.Load() {
			select {
			case r.failCh <- m:
			default:
			}
			return
		}
		// Post-ready failure: the runtime or the app is gone and the
		// session with it.
		r.logger.Error("worker reported failure", "phase", m.Phase, "message", m.Message)
		r.tr.closeWith(newBootstrapError(phaseFromString(m.Phase), m.Message, r.stderr.String(), nil))
		r.Terminate()
	default:
		r.logger.Warn("unexpected control message", "kind", msg.ControlMessageKind())
	}
}

func (r *Runner) onControlError(err error) {
	r.logger.Warn("control frame rejected", "error", err)
}

func (r *Runner) onSession(msg protocol.Message) {
	r.tr.enqueueMessage(msg)
}

func (r *Runner) onSessionError(err error) {
	r.tr.enqueueError(err)
}

// tailBuffer keeps the last few kilobytes of worker stderr for error
// reports.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	size  int
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	t.size += len(line) + 1
	for t.size > t.max && len(t.lines) > 1 {
		t.size -= len(t.lines[0]) + 1
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

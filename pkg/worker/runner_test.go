package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

// fakeProc is an in-memory worker process wired up with real pipes.
type fakeProc struct {
	hostIn   *io.PipeWriter // runner's stdin writer
	workerIn *io.PipeReader // fake's view of stdin

	hostOut   *io.PipeReader // runner's stdout reader
	workerOut *io.PipeWriter // fake's view of stdout

	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	killCount atomic.Int32
	dead      atomic.Bool
	exited    chan struct{}
	exitErr   error
}

func newFakeProc() *fakeProc {
	workerIn, hostIn := io.Pipe()
	hostOut, workerOut := io.Pipe()
	stderrR, stderrW := io.Pipe()
	return &fakeProc{
		hostIn:    hostIn,
		workerIn:  workerIn,
		hostOut:   hostOut,
		workerOut: workerOut,
		stderrR:   stderrR,
		stderrW:   stderrW,
		exited:    make(chan struct{}),
	}
}

func (p *fakeProc) Stdin() io.Writer  { return p.hostIn }
func (p *fakeProc) Stdout() io.Reader { return p.hostOut }
func (p *fakeProc) Stderr() io.Reader { return p.stderrR }
func (p *fakeProc) Pid() int          { return 4242 }

func (p *fakeProc) Kill() {
	p.killCount.Add(1)
	p.die(errors.New("signal: killed"))
}

func (p *fakeProc) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *fakeProc) die(err error) {
	if p.dead.Swap(true) {
		return
	}
	p.exitErr = err
	p.workerOut.Close()
	p.stderrW.Close()
	p.workerIn.CloseWithError(io.ErrClosedPipe)
	close(p.exited)
}

// fakeWorker scripts the far side of the bridge. Frames the runner writes
// are decoded onto the ctl and msg channels; sendCtl and sendMsg emit
// frames back.
type fakeWorker struct {
	proc *fakeProc
	spec processSpec
	ctl  chan protocol.ControlMessage
	msg  chan protocol.Message
}

func newFakeWorker(t *testing.T) *fakeWorker {
	t.Helper()
	w := &fakeWorker{
		proc: newFakeProc(),
		ctl:  make(chan protocol.ControlMessage, 16),
		msg:  make(chan protocol.Message, 16),
	}
	go w.readLoop()
	return w
}

func (w *fakeWorker) start(spec processSpec) (process, error) {
	w.spec = spec
	return w.proc, nil
}

func (w *fakeWorker) readLoop() {
	sc := bufio.NewScanner(w.proc.workerIn)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		var f frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			continue
		}
		switch {
		case f.Ctl != nil:
			if msg, err := protocol.DecodeControl(f.Ctl); err == nil {
				w.ctl <- msg
			}
		case f.Msg != nil:
			if msg, err := (protocol.JSONCodec{}).Decode(f.Msg); err == nil {
				w.msg <- msg
			}
		}
	}
}

func (w *fakeWorker) writeFrame(f frame) {
	line, err := json.Marshal(f)
	if err != nil {
		return
	}
	_, _ = w.proc.workerOut.Write(append(line, '\n'))
}

func (w *fakeWorker) sendCtl(msg protocol.ControlMessage) {
	data, err := protocol.EncodeControl(msg)
	if err != nil {
		return
	}
	w.writeFrame(frame{Ctl: data})
}

func (w *fakeWorker) sendMsg(msg protocol.Message) {
	data, err := (protocol.JSONCodec{}).Encode(msg)
	if err != nil {
		return
	}
	w.writeFrame(frame{Msg: data})
}

func (w *fakeWorker) stderrLine(line string) {
	_, _ = w.proc.stderrW.Write([]byte(line + "\n"))
}

func (w *fakeWorker) exit(err error) {
	w.proc.die(err)
}

// awaitCtl is the script-goroutine variant of nextCtl: no testing.T, nil on
// timeout.
func (w *fakeWorker) awaitCtl() protocol.ControlMessage {
	select {
	case msg := <-w.ctl:
		return msg
	case <-time.After(2 * time.Second):
		return nil
	}
}

func (w *fakeWorker) nextCtl(t *testing.T) protocol.ControlMessage {
	t.Helper()
	select {
	case msg := <-w.ctl:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a control frame")
		return nil
	}
}

func (w *fakeWorker) nextMsg(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-w.msg:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a session frame")
		return nil
	}
}

// bootRunner creates a runner against w and scripts a clean bootstrap.
func bootRunner(t *testing.T, w *fakeWorker, opts ...Option) *Runner {
	t.Helper()
	go func() {
		if w.awaitCtl() == nil {
			return
		}
		w.sendCtl(&protocol.StatusMessage{Phase: "runtime", Message: "interpreter starting"})
		w.sendCtl(&protocol.StatusMessage{Phase: "packages", Message: "installing packages"})
		w.sendCtl(&protocol.ReadyMessage{RuntimeVersion: "3.12.1"})
	}()
	r := NewRunner(append([]Option{withStart(w.start), WithInitTimeout(2 * time.Second)}, opts...)...)
	if err := r.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(r.Terminate)
	return r
}

type captureHandler struct {
	msgs   chan protocol.Message
	decode chan error
	closed chan error
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		msgs:   make(chan protocol.Message, 16),
		decode: make(chan error, 4),
		closed: make(chan error, 2),
	}
}

func (h *captureHandler) HandleMessage(msg protocol.Message) { h.msgs <- msg }
func (h *captureHandler) HandleDecodeError(err error)        { h.decode <- err }
func (h *captureHandler) HandleClosed(err error)             { h.closed <- err }

func waitClosed(t *testing.T, h *captureHandler) error {
	t.Helper()
	select {
	case err := <-h.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the closed hook")
		return nil
	}
}

func TestCreateSendsInitAndBecomesReady(t *testing.T) {
	w := newFakeWorker(t)
	r := NewRunner(withStart(w.start), WithInitTimeout(2*time.Second),
		WithPackages("numpy", "pandas"),
		WithIndexURL("https://pypi.internal/simple"),
		WithEnv(map[string]string{"APP_MODE": "test"}))
	t.Cleanup(r.Terminate)

	created := make(chan error, 1)
	go func() { created <- r.Create(context.Background()) }()

	init, ok := w.nextCtl(t).(*protocol.InitRequest)
	if !ok {
		t.Fatal("first control frame should be init")
	}
	if init.IndexURL != "https://pypi.internal/simple" {
		t.Errorf("IndexURL = %q", init.IndexURL)
	}
	if len(init.Packages) != 2 || init.Packages[0] != "numpy" {
		t.Errorf("Packages = %v", init.Packages)
	}
	if init.Env["APP_MODE"] != "test" {
		t.Errorf("Env = %v", init.Env)
	}
	if !slices.Contains(w.spec.env, "APP_MODE=test") {
		t.Error("env var should also reach the process environment")
	}

	if r.Ready() {
		t.Error("runner must not report ready before the worker does")
	}
	w.sendCtl(&protocol.StatusMessage{Phase: "runtime", Message: "starting"})
	w.sendCtl(&protocol.ReadyMessage{RuntimeVersion: "3.12.1"})

	select {
	case err := <-created:
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Create did not return")
	}
	if !r.Ready() {
		t.Error("runner should be ready")
	}
	if got := r.RuntimeVersion(); got != "3.12.1" {
		t.Errorf("RuntimeVersion = %q", got)
	}
}

func TestCreateTimesOut(t *testing.T) {
	w := newFakeWorker(t)
	r := NewRunner(withStart(w.start), WithInitTimeout(80*time.Millisecond))

	err := r.Create(context.Background())
	var be *BootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("Create = %v, want *BootstrapError", err)
	}
	if be.Cause != CauseTimeout {
		t.Errorf("Cause = %s, want timeout", be.Cause)
	}
	if be.Hint == "" {
		t.Error("timeout errors should carry a hint")
	}
	if got := w.proc.killCount.Load(); got != 1 {
		t.Errorf("worker killed %d times, want 1", got)
	}
	if err := r.Run(context.Background(), Source{Code: "x"}); !errors.Is(err, ErrTerminated) {
		t.Errorf("Run after failed Create = %v, want ErrTerminated", err)
	}
}

func TestCreateBootstrapFailureReport(t *testing.T) {
	w := newFakeWorker(t)
	go func() {
		if w.awaitCtl() == nil {
			return
		}
		w.sendCtl(&protocol.StatusMessage{Phase: "packages", Message: "installing left-pad"})
		w.sendCtl(&protocol.ErrorReport{Phase: "packages", Message: "No matching distribution found for left-pad"})
	}()
	r := NewRunner(withStart(w.start), WithInitTimeout(2*time.Second))

	err := r.Create(context.Background())
	var be *BootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("Create = %v, want *BootstrapError", err)
	}
	if be.Phase != PhasePackages {
		t.Errorf("Phase = %s, want packages", be.Phase)
	}
	if be.Cause != CauseNotFound {
		t.Errorf("Cause = %s, want not-found", be.Cause)
	}
	if be.Hint == "" {
		t.Error("expected a hint")
	}
	if w.proc.killCount.Load() == 0 {
		t.Error("failed bootstrap should kill the worker")
	}
}

func TestCreateSurvivesWorkerDeathReport(t *testing.T) {
	w := newFakeWorker(t)
	go func() {
		if w.awaitCtl() == nil {
			return
		}
		w.stderrLine("Traceback (most recent call last):")
		w.stderrLine("ModuleNotFoundError: No module named 'trellis_worker'")
		w.exit(errors.New("exit status 1"))
	}()
	r := NewRunner(withStart(w.start), WithInitTimeout(2*time.Second))

	err := r.Create(context.Background())
	var be *BootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("Create = %v, want *BootstrapError", err)
	}
	if be.Cause != CauseNotFound {
		t.Errorf("Cause = %s, want not-found", be.Cause)
	}
	if !strings.Contains(be.Stderr, "trellis_worker") {
		t.Errorf("Stderr should carry the traceback tail, got %q", be.Stderr)
	}
}

func TestCreateSpawnFailure(t *testing.T) {
	r := NewRunner(withStart(func(processSpec) (process, error) {
		return nil, errors.New(`exec: "python3": executable file not found in $PATH`)
	}))

	err := r.Create(context.Background())
	var be *BootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("Create = %v, want *BootstrapError", err)
	}
	if be.Phase != PhaseSpawn {
		t.Errorf("Phase = %s, want spawn", be.Phase)
	}
	if !strings.Contains(be.Hint, "interpreter") {
		t.Errorf("Hint = %q, should mention the interpreter", be.Hint)
	}
}

func TestCreateTwice(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)
	if err := r.Create(context.Background()); !errors.Is(err, ErrAlreadyCreated) {
		t.Fatalf("second Create = %v, want ErrAlreadyCreated", err)
	}
}

func TestCreateAfterTerminate(t *testing.T) {
	w := newFakeWorker(t)
	r := NewRunner(withStart(w.start))
	r.Terminate()
	if err := r.Create(context.Background()); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Create = %v, want ErrTerminated", err)
	}
}

func TestSessionPlaneRoundTrip(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	h := newCaptureHandler()
	tr.SetHandler(h)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Send(protocol.NewHello("c1", protocol.ThemeDark, "/")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	hello, ok := w.nextMsg(t).(*protocol.Hello)
	if !ok || hello.ClientID != "c1" {
		t.Fatalf("worker should see the hello, got %#v", hello)
	}

	w.sendMsg(protocol.NewHelloResponse("sess-1", "0.9.0"))
	w.sendMsg(protocol.NewRender(&protocol.Element{Type: "Text", Props: map[string]any{"text": "hi"}}))

	first := <-h.msgs
	if resp, ok := first.(*protocol.HelloResponse); !ok || resp.SessionID != "sess-1" {
		t.Fatalf("first delivery = %#v, want the helloResponse", first)
	}
	second := <-h.msgs
	if render, ok := second.(*protocol.Render); !ok || render.Tree.Type != "Text" {
		t.Fatalf("second delivery = %#v, want the render", second)
	}
}

func TestSessionPlaneGatedOnReady(t *testing.T) {
	w := newFakeWorker(t)
	r := NewRunner(withStart(w.start))
	t.Cleanup(r.Terminate)

	tr := r.Transport()
	tr.SetHandler(newCaptureHandler())
	if err := tr.Connect(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Connect = %v, want ErrNotReady", err)
	}
	if err := tr.Send(protocol.NewHello("c1", protocol.ThemeLight, "/")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send = %v, want ErrNotReady", err)
	}
}

func TestRunSubmitsInlineCode(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	if err := r.Run(context.Background(), Source{Code: "app = Demo()", Entry: "app"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req, ok := w.nextCtl(t).(*protocol.RunRequest)
	if !ok {
		t.Fatal("worker should receive a run frame")
	}
	if req.Code != "app = Demo()" || req.Entry != "app" {
		t.Errorf("run frame = %#v", req)
	}
	if req.Module != "" || req.Archive != "" {
		t.Errorf("inline source should not set module or archive: %#v", req)
	}
}

func TestRunSubmitsModuleFiles(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	src := Source{
		Module: "demo",
		Files: map[string]string{
			"demo/__init__.py": "app = 1",
			"demo/views.py":    "pass",
		},
	}
	if err := r.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req, ok := w.nextCtl(t).(*protocol.RunRequest)
	if !ok {
		t.Fatal("worker should receive a run frame")
	}
	if req.Module != "demo" || len(req.Files) != 2 {
		t.Errorf("run frame = %#v", req)
	}
}

func TestRunRejectsAmbiguousSource(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	sources := []Source{
		{},
		{Code: "x", Package: "demo.whl"},
		{Code: "x", Module: "demo"},
		{Module: "demo"}, // no files
	}
	for _, src := range sources {
		if err := r.Run(context.Background(), src); !errors.Is(err, ErrBadSource) {
			t.Errorf("Run(%#v) = %v, want ErrBadSource", src, err)
		}
	}
}

func TestRunPackageBlobLifecycle(t *testing.T) {
	content := []byte("wheel bytes")
	srcPath := filepath.Join(t.TempDir(), "app.whl")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	w := newFakeWorker(t)
	r := bootRunner(t, w)

	if err := r.Run(context.Background(), Source{Package: srcPath}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req, ok := w.nextCtl(t).(*protocol.RunRequest)
	if !ok {
		t.Fatal("worker should receive a run frame")
	}
	if req.Archive == "" || req.Archive == srcPath {
		t.Fatalf("Archive = %q, want a fresh blob path", req.Archive)
	}
	got, err := os.ReadFile(req.Archive)
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("blob content mismatch: %v", err)
	}

	r.Terminate()
	if _, err := os.Stat(req.Archive); !os.IsNotExist(err) {
		t.Errorf("Terminate should remove the blob, stat err = %v", err)
	}
	if _, err := os.Stat(srcPath); err != nil {
		t.Errorf("the original package must survive, stat err = %v", err)
	}
}

func TestTerminateIdempotent(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	h := newCaptureHandler()
	tr.SetHandler(h)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	r.Terminate()
	r.Terminate()

	if got := w.proc.killCount.Load(); got != 1 {
		t.Errorf("worker killed %d times, want 1", got)
	}
	if err := waitClosed(t, h); err != nil {
		t.Errorf("local teardown should report nil, got %v", err)
	}
	select {
	case err := <-h.closed:
		t.Errorf("closed hook fired twice, second: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if r.Ready() {
		t.Error("terminated runner must not be ready")
	}
}

func TestWorkerDeathSeversSession(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	h := newCaptureHandler()
	tr.SetHandler(h)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	w.exit(errors.New("exit status 137"))

	err := waitClosed(t, h)
	if err == nil || !strings.Contains(err.Error(), "exited unexpectedly") {
		t.Fatalf("closed hook = %v, want an unexpected-exit error", err)
	}
	if serr := tr.Send(protocol.NewEvent("cb-1", nil)); !errors.Is(serr, transport.ErrClosed) {
		t.Errorf("Send after death = %v, want ErrClosed", serr)
	}
}

func TestPostReadyErrorReportSevers(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	h := newCaptureHandler()
	tr.SetHandler(h)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	w.sendCtl(&protocol.ErrorReport{Phase: "run", Message: "Traceback: NameError: name 'app' is not defined"})

	err := waitClosed(t, h)
	var be *BootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("closed hook = %v, want *BootstrapError", err)
	}
	if be.Phase != PhaseRun {
		t.Errorf("Phase = %s, want run", be.Phase)
	}
	if w.proc.killCount.Load() == 0 {
		t.Error("a failed app should take the worker down")
	}
}

func TestTransportCloseTerminatesWorker(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	h := newCaptureHandler()
	tr.SetHandler(h)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := waitClosed(t, h); err != nil {
		t.Errorf("local close should report nil, got %v", err)
	}
	if got := w.proc.killCount.Load(); got != 1 {
		t.Errorf("worker killed %d times, want 1", got)
	}
	if r.Ready() {
		t.Error("runner must not stay ready after Close")
	}
}

func TestConnectAfterDeathReturnsCause(t *testing.T) {
	w := newFakeWorker(t)
	r := bootRunner(t, w)

	tr := r.Transport()
	tr.SetHandler(newCaptureHandler())
	w.exit(errors.New("exit status 9"))

	// Wait for the death to propagate: Send flips to ErrClosed once the
	// transport is severed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := tr.Send(protocol.NewEvent("cb-1", nil))
		if errors.Is(err, transport.ErrClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transport never closed, last Send err %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	err := tr.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "exited unexpectedly") {
		t.Fatalf("Connect = %v, want the death cause", err)
	}
}

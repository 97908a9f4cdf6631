package clienttest

import (
	"sync"
	"testing"
	"time"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

// awaitTimeout bounds every Await helper. Scripted exchanges cross one
// in-process pipe, so anything slower than this is a hang.
const awaitTimeout = 2 * time.Second

// AppOption configures a FakeApp.
type AppOption func(*FakeApp)

// WithSessionID sets the session id the app hands out on handshake.
func WithSessionID(id string) AppOption {
	return func(a *FakeApp) { a.sessionID = id }
}

// WithServerVersion sets the version string the app reports on handshake.
func WithServerVersion(version string) AppOption {
	return func(a *FakeApp) { a.version = version }
}

// WithManualHandshake stops the app from answering hello automatically.
// The test script decides when to call AcceptHandshake or SendError.
func WithManualHandshake() AppOption {
	return func(a *FakeApp) { a.autoAccept = false }
}

// FakeApp is a scripted application double. It sits on the far end of an
// in-process pipe, records everything the client sends, and pushes whatever
// the test script tells it to: handshake responses, renders, errors.
//
// All methods are safe for concurrent use; the recording side runs on the
// pipe's delivery goroutine while the script runs on the test goroutine.
type FakeApp struct {
	tr transport.Transport

	sessionID  string
	version    string
	autoAccept bool

	mu     sync.Mutex
	hello  *protocol.Hello
	events []*protocol.Event
	paths  []string

	helloCh  chan *protocol.Hello
	eventCh  chan *protocol.Event
	pathCh   chan string
	closedCh chan error
}

func newFakeApp(tr transport.Transport, opts ...AppOption) *FakeApp {
	a := &FakeApp{
		tr:         tr,
		sessionID:  "test-session",
		version:    "0.0.0-test",
		autoAccept: true,
		helloCh:    make(chan *protocol.Hello, 1),
		eventCh:    make(chan *protocol.Event, 16),
		pathCh:     make(chan string, 16),
		closedCh:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleMessage implements transport.Handler, recording by kind.
func (a *FakeApp) HandleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Hello:
		a.mu.Lock()
		a.hello = m
		a.mu.Unlock()
		select {
		case a.helloCh <- m:
		default:
		}
		if a.autoAccept {
			a.AcceptHandshake()
		}
	case *protocol.Event:
		a.mu.Lock()
		a.events = append(a.events, m)
		a.mu.Unlock()
		select {
		case a.eventCh <- m:
		default:
		}
	case *protocol.URLChanged:
		a.mu.Lock()
		a.paths = append(a.paths, m.Path)
		a.mu.Unlock()
		select {
		case a.pathCh <- m.Path:
		default:
		}
	}
}

// HandleDecodeError implements transport.Handler. An in-process pipe moves
// Go values without serialization, so this never fires.
func (a *FakeApp) HandleDecodeError(err error) {}

// HandleClosed implements transport.Handler.
func (a *FakeApp) HandleClosed(err error) {
	select {
	case a.closedCh <- err:
	default:
	}
}

// AcceptHandshake answers the handshake with the configured session id and
// version. With WithManualHandshake the script calls it explicitly,
// possibly never.
func (a *FakeApp) AcceptHandshake() {
	_ = a.tr.Send(protocol.NewHelloResponse(a.sessionID, a.version))
}

// SendError pushes a session error. Sent while the handshake is pending it
// rejects the session; sent later it fails a live one.
func (a *FakeApp) SendError(message string) {
	_ = a.tr.Send(protocol.NewErrorMessage(message))
}

// Render pushes a complete UI tree to the client.
func (a *FakeApp) Render(tree *protocol.Element) {
	_ = a.tr.Send(protocol.NewRender(tree))
}

// RenderAt pushes a tree that also navigates the client to path. The tree's
// root props are annotated in place before sending.
func (a *FakeApp) RenderAt(path string, tree *protocol.Element) {
	if tree.Props == nil {
		tree.Props = map[string]any{}
	}
	tree.Props[protocol.NavigateProp] = path
	a.Render(tree)
}

// SimulateCrash severs the pipe from the application side, the way a dying
// process would. The client sees the medium lost, not a clean close.
func (a *FakeApp) SimulateCrash() {
	_ = a.tr.Close()
}

// Hello returns the recorded handshake request, nil before it arrives.
func (a *FakeApp) Hello() *protocol.Hello {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hello
}

// Events returns a copy of every event received so far, in arrival order.
func (a *FakeApp) Events() []*protocol.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*protocol.Event, len(a.events))
	copy(out, a.events)
	return out
}

// Paths returns a copy of every urlChanged path received so far.
func (a *FakeApp) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.paths))
	copy(out, a.paths)
	return out
}

// AwaitHello blocks until the handshake request arrives.
func (a *FakeApp) AwaitHello(tb testing.TB) *protocol.Hello {
	tb.Helper()
	select {
	case h := <-a.helloCh:
		return h
	case <-time.After(awaitTimeout):
		tb.Fatalf("timed out waiting for hello")
		return nil
	}
}

// AwaitEvent blocks until the next event arrives.
func (a *FakeApp) AwaitEvent(tb testing.TB) *protocol.Event {
	tb.Helper()
	select {
	case e := <-a.eventCh:
		return e
	case <-time.After(awaitTimeout):
		tb.Fatalf("timed out waiting for an event")
		return nil
	}
}

// AwaitURLChanged blocks until the next urlChanged arrives and returns its
// path.
func (a *FakeApp) AwaitURLChanged(tb testing.TB) string {
	tb.Helper()
	select {
	case p := <-a.pathCh:
		return p
	case <-time.After(awaitTimeout):
		tb.Fatalf("timed out waiting for urlChanged")
		return ""
	}
}

// AwaitClosed blocks until the transport reports closure and returns the
// error it carried (nil for a close the app itself initiated).
func (a *FakeApp) AwaitClosed(tb testing.TB) error {
	tb.Helper()
	select {
	case err := <-a.closedCh:
		return err
	case <-time.After(awaitTimeout):
		tb.Fatalf("timed out waiting for transport closure")
		return nil
	}
}

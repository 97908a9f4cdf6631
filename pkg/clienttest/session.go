package clienttest

import (
	"context"
	"testing"
	"time"

	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

// SessionOption configures a test session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	appOpts    []AppOption
	clientOpts []client.Option
}

// WithAppOptions forwards options to the scripted app.
func WithAppOptions(opts ...AppOption) SessionOption {
	return func(c *sessionConfig) {
		c.appOpts = append(c.appOpts, opts...)
	}
}

// WithClientOptions forwards options to the client under test.
func WithClientOptions(opts ...client.Option) SessionOption {
	return func(c *sessionConfig) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// Session couples a client under test with the scripted app on the far end
// of an in-process pipe. Drive the app, then await and assert on the
// client's store.
type Session struct {
	Client *client.Client
	App    *FakeApp

	renders   chan *protocol.Element
	removeSub func()
}

// NewSession wires a client and a scripted app but does not connect. Use it
// when the test needs to drive the handshake itself; otherwise use Connect.
// Cleanup is registered automatically.
func NewSession(tb testing.TB, opts ...SessionOption) *Session {
	tb.Helper()
	cfg := sessionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientEnd, appEnd := transport.NewPipe()
	app := newFakeApp(appEnd, cfg.appOpts...)
	appEnd.SetHandler(app)
	if err := appEnd.Connect(context.Background()); err != nil {
		tb.Fatalf("connect app endpoint: %v", err)
	}

	s := &Session{
		Client:  client.NewClient(clientEnd, cfg.clientOpts...),
		App:     app,
		renders: make(chan *protocol.Element, 16),
	}

	// The subscriber runs on the client's event loop; last needs no lock.
	var last *protocol.Element
	s.removeSub = s.Client.Store().Subscribe(func(snap client.Snapshot) {
		if snap.Tree != nil && snap.Tree != last {
			last = snap.Tree
			select {
			case s.renders <- snap.Tree:
			default:
			}
		}
	})

	tb.Cleanup(s.Close)
	return s
}

// Connect builds a session and completes the handshake, failing the test if
// it does not succeed within the await timeout.
func Connect(tb testing.TB, opts ...SessionOption) *Session {
	tb.Helper()
	s := NewSession(tb, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), awaitTimeout)
	defer cancel()
	if err := s.Client.Connect(ctx); err != nil {
		tb.Fatalf("connect client: %v", err)
	}
	return s
}

// Close disconnects the client and releases the session's subscriptions.
// Registered as test cleanup; calling it again is a no-op.
func (s *Session) Close() {
	s.removeSub()
	s.Client.Disconnect()
}

// AwaitRender blocks until the store applies a tree it has not yet handed
// out, then returns it. Successive calls return successive renders.
func (s *Session) AwaitRender(tb testing.TB) *protocol.Element {
	tb.Helper()
	select {
	case tree := <-s.renders:
		return tree
	case <-time.After(awaitTimeout):
		tb.Fatalf("timed out waiting for a render")
		return nil
	}
}

// AwaitState blocks until the client reaches the wanted connection state.
func (s *Session) AwaitState(tb testing.TB, want client.ConnState) {
	tb.Helper()
	deadline := time.Now().Add(awaitTimeout)
	for time.Now().Before(deadline) {
		if s.Client.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("timed out waiting for state %v, still %v", want, s.Client.State())
}

// AwaitError blocks until the session fails and returns the recorded error
// text.
func (s *Session) AwaitError(tb testing.TB) string {
	tb.Helper()
	s.AwaitState(tb, client.StateError)
	return s.Client.Store().Snapshot().Err
}

// AwaitPath blocks until the router reaches the wanted path. Server-driven
// navigation lands just after the render that carries it, so await the path
// rather than reading it right after AwaitRender.
func (s *Session) AwaitPath(tb testing.TB, want string) {
	tb.Helper()
	deadline := time.Now().Add(awaitTimeout)
	for time.Now().Before(deadline) {
		if s.Client.Router().Path() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("timed out waiting for path %q, still %q", want, s.Client.Router().Path())
}

// MustRender materializes the current tree into live UI nodes, failing the
// test if no render has arrived yet.
func (s *Session) MustRender(tb testing.TB) *ui.Node {
	tb.Helper()
	node := s.Client.Render()
	if node == nil {
		tb.Fatalf("no tree rendered yet")
	}
	return node
}

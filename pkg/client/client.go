package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/render"
	"github.com/emmapowers/trellis-sub001/pkg/router"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

// commandBuffer bounds the event-loop queue. Posts block when full, which
// backpressures the transport's delivery goroutine instead of dropping.
const commandBuffer = 64

// Client errors.
var (
	// ErrAlreadyStarted is returned by a second Connect on the same client.
	ErrAlreadyStarted = errors.New("client: already started")
	// ErrClientClosed is returned when operating on a disconnected client.
	ErrClientClosed = errors.New("client: closed")
	// ErrHandshake wraps handshake failures reported by the server or the
	// transport.
	ErrHandshake = errors.New("client: handshake failed")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRoutingMode sets the routing mode. Defaults to router.ModeHashURL.
func WithRoutingMode(mode router.Mode) Option {
	return func(c *Client) { c.routingMode = mode }
}

// WithHistory sets the host history implementation.
func WithHistory(h router.History) Option {
	return func(c *Client) { c.history = h }
}

// WithMiddleware appends dispatch middleware, observing inbound messages in
// the order given.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, middlewares...) }
}

// WithTheme sets the host's resolved theme signal sent in the handshake.
func WithTheme(theme protocol.Theme) Option {
	return func(c *Client) { c.theme = theme }
}

// WithThemeMode sets the user's theme preference sent in the handshake.
func WithThemeMode(mode protocol.ThemeMode) Option {
	return func(c *Client) { c.themeMode = mode }
}

// WithPath sets the initial path, overriding what the history derives.
func WithPath(path string) Option {
	return func(c *Client) { c.initialPath = path }
}

// WithRegistry sets the widget registry used for rendering.
func WithRegistry(reg *ui.Registry) Option {
	return func(c *Client) { c.registry = reg }
}

// Client wires one transport, one store and one router into a session. All
// inbound work funnels through a single event-loop goroutine, so store
// mutation, dispatch and routing happen on one logical thread. Outbound
// sends (events, url changes) go straight to the transport, which is safe
// for concurrent use.
type Client struct {
	transport  transport.Transport
	store      *Store
	router     *router.Manager
	registry   *ui.Registry
	renderer   *render.Renderer
	dispatcher *Dispatcher
	dispatch   DispatchFunc
	logger     *slog.Logger
	opts       []Option

	clientID    string
	theme       protocol.Theme
	themeMode   protocol.ThemeMode
	initialPath string
	routingMode router.Mode
	history     router.History
	middlewares []Middleware

	commands chan func()
	done     chan struct{}
	loopDone chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
}

// generateClientID generates a cryptographically random client ID.
func generateClientID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// SECURITY: Fatal on entropy failure - weak IDs are dangerous
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// NewClient creates a client over the given transport. The client owns the
// transport from here on; Close it via Disconnect.
func NewClient(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport:   t,
		store:       NewStore(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		opts:        opts,
		clientID:    generateClientID(),
		theme:       protocol.ThemeLight,
		themeMode:   protocol.ThemeModeSystem,
		routingMode: router.ModeHashURL,
		commands:    make(chan func(), commandBuffer),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("client_id", c.clientID)

	routerOpts := []router.Option{router.WithLogger(c.logger)}
	if c.history != nil {
		routerOpts = append(routerOpts, router.WithHistory(c.history))
	}
	if c.initialPath != "" {
		routerOpts = append(routerOpts, router.WithInitialPath(c.initialPath))
	}
	c.router = router.NewManager(c.routingMode, c.sendURLChanged, routerOpts...)

	if c.registry == nil {
		c.registry = ui.NewRegistry()
	}
	c.renderer = render.New(c.registry, c)
	c.dispatcher = NewDispatcher(c.store, c.router, c.logger)
	c.dispatch = Chain(c.dispatcher.Dispatch, c.middlewares...)
	return c
}

// NewSession builds a fresh client over a new transport with the same
// options. Failed sessions are never reused; a reconnect is a new session
// with a new client id. The receiver is left untouched.
func (c *Client) NewSession(t transport.Transport) *Client {
	return NewClient(t, c.opts...)
}

// ClientID returns the locally generated session identity.
func (c *Client) ClientID() string {
	return c.clientID
}

// Store returns the session store for reads and subscriptions.
func (c *Client) Store() *Store {
	return c.store
}

// Router returns the session's router manager.
func (c *Client) Router() *router.Manager {
	return c.router
}

// Registry returns the widget registry. Register widgets before rendering.
func (c *Client) Registry() *ui.Registry {
	return c.registry
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return c.store.State()
}

// Render materializes the store's current tree into live UI nodes. It
// returns nil before the first render message.
func (c *Client) Render() *ui.Node {
	return c.renderer.Render(c.store.Tree())
}

// Connect establishes the transport, performs the handshake and blocks
// until the session is connected, the server rejects it, or ctx expires.
// A client connects at most once.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.started.Swap(true) {
		return ErrAlreadyStarted
	}

	c.transport.SetHandler(c)

	stateCh := make(chan ConnState, 4)
	removeSub := c.store.SubscribeState(func(_, next ConnState) {
		select {
		case stateCh <- next:
		default:
		}
	})
	defer removeSub()

	c.store.SetConnecting()
	go c.run()

	if err := c.transport.Connect(ctx); err != nil {
		c.store.SetError("transport connect: " + err.Error())
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	hello := protocol.NewHello(c.clientID, c.theme, c.router.Path())
	hello.ThemeMode = c.themeMode
	if err := c.transport.Send(hello); err != nil {
		c.store.SetError("send hello: " + err.Error())
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	c.logger.Debug("hello sent", "path", hello.Path, "system_theme", string(hello.SystemTheme))

	for {
		select {
		case <-ctx.Done():
			c.store.SetError("handshake canceled: " + ctx.Err().Error())
			return ctx.Err()
		case state := <-stateCh:
			switch state {
			case StateConnected:
				c.router.Start()
				snap := c.store.Snapshot()
				c.logger.Info("session established",
					"session_id", snap.SessionID, "server_version", snap.ServerVersion)
				return nil
			case StateError:
				return fmt.Errorf("%w: %s", ErrHandshake, c.store.Snapshot().Err)
			case StateDisconnected:
				return ErrClientClosed
			}
		}
	}
}

// SendEvent sends a callback invocation to the application process.
// Delivery is fire-and-forget; the process answers, if at all, with a later
// render.
func (c *Client) SendEvent(callbackID string, args []any) {
	if err := c.transport.Send(protocol.NewEvent(callbackID, args)); err != nil {
		c.logger.Warn("event send failed", "callback_id", callbackID, "error", err)
	}
}

// Navigate pushes a local navigation through the router, which updates the
// host address and reports the path to the application process.
func (c *Client) Navigate(path string) {
	c.router.Navigate(path)
}

// Disconnect ends the session: it detaches the router from the host
// history, records the disconnected state, closes the transport and
// releases every subscriber. Calling it again is a no-op.
func (c *Client) Disconnect() {
	if c.closed.Swap(true) {
		return
	}
	c.router.Close()
	c.store.SetDisconnected()
	c.transport.Close()
	close(c.done)
	if c.started.Load() {
		<-c.loopDone
	}
	c.store.Close()
	c.logger.Info("session closed")
}

// run is the event loop. Everything that mutates the store executes here,
// in transport delivery order.
func (c *Client) run() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.commands:
			fn()
		case <-c.done:
			// Drain commands queued before shutdown so ordering holds.
			for {
				select {
				case fn := <-c.commands:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post schedules fn on the event loop, blocking when the queue is full.
// Posts after Disconnect are discarded.
func (c *Client) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

// HandleMessage implements transport.Handler.
func (c *Client) HandleMessage(msg protocol.Message) {
	c.post(func() {
		// Violations are already recorded in the store; nothing to add.
		_ = c.dispatch(msg)
	})
}

// HandleDecodeError implements transport.Handler.
func (c *Client) HandleDecodeError(err error) {
	c.post(func() {
		_ = c.dispatcher.DecodeError(err)
	})
}

// HandleClosed implements transport.Handler.
func (c *Client) HandleClosed(err error) {
	c.post(func() {
		c.dispatcher.TransportLost(err)
	})
}

// sendURLChanged is the router's emission path for local navigation.
func (c *Client) sendURLChanged(path string) {
	if err := c.transport.Send(protocol.NewURLChanged(path)); err != nil {
		c.logger.Warn("urlChanged send failed", "path", path, "error", err)
	}
}

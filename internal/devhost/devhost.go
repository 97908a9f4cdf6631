// Package devhost runs a loopback Trellis application host.
//
// The host serves the session protocol over a WebSocket endpoint and runs
// a scripted Application against it: handshake, renders, events and
// navigation, with either wire codec. It exists for manual testing
// ('trellis-client demo') and integration tests; it is not a production
// server.
package devhost

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Host defaults, matching the socket transport's deadlines.
const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second

	// DefaultServerVersion is reported in handshakes when no version is set.
	DefaultServerVersion = "0.0.0-dev"
)

// Application produces render trees for sessions. All methods except
// Unmount are called on the session's read goroutine; returning a non-nil
// tree pushes it as a render. Applications may also push asynchronously
// through Session.Render.
type Application interface {
	// Mount is called once after the handshake completes.
	Mount(s *Session) *protocol.Element

	// HandleEvent reacts to a widget event.
	HandleEvent(s *Session, ev *protocol.Event) *protocol.Element

	// HandleNavigate reacts to a client-side URL change.
	HandleNavigate(s *Session, path string) *protocol.Element

	// Unmount is called once when the session ends, on whichever
	// goroutine tears it down.
	Unmount(s *Session)
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithServerVersion sets the version string reported in handshakes.
func WithServerVersion(v string) Option {
	return func(h *Host) { h.version = v }
}

// WithReadTimeout sets how long a session waits for an inbound frame.
func WithReadTimeout(d time.Duration) Option {
	return func(h *Host) { h.readTimeout = d }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Host) { h.writeTimeout = d }
}

// Host accepts WebSocket sessions and runs an Application against each.
type Host struct {
	app     Application
	logger  *slog.Logger
	version string

	readTimeout  time.Duration
	writeTimeout time.Duration

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool

	nextID atomic.Uint64
}

// New creates a host for the given application.
func New(app Application, opts ...Option) *Host {
	h := &Host{
		app:          app,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		version:      DefaultServerVersion,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the HTTP surface: the session endpoint, a health check
// and an info page.
func (h *Host) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Get("/ws", h.HandleWebSocket)
	r.Get("/", h.handleIndex)

	return r
}

// Handler returns the router as a plain http.Handler for mounting.
func (h *Host) Handler() http.Handler {
	return h.Router()
}

func (h *Host) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Host) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Trellis demo host %s\n", h.version)
	fmt.Fprintf(w, "sessions: %d\n", h.SessionCount())
	fmt.Fprintf(w, "connect a client to ws://%s/ws\n", r.Host)
}

// HandleWebSocket upgrades the request and runs the session until the
// client disconnects.
func (h *Host) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "host closed", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade error", "error", err)
		return
	}

	id := fmt.Sprintf("dev-%d", h.nextID.Add(1))
	s := newSession(id, h, conn)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("session opened", "session_id", id, "remote", r.RemoteAddr)
	s.run()
	h.logger.Info("session closed", "session_id", id)
}

// removeSession drops a finished session from the registry.
func (h *Host) removeSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// SessionCount returns the number of live sessions.
func (h *Host) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close severs all live sessions and refuses new ones.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// ListenAndServe serves the host on addr until the context is canceled,
// then shuts down gracefully.
func (h *Host) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

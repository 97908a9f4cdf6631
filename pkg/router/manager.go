package router

import (
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// Mode selects which address-history mechanism, if any, the Manager
// touches. It is chosen once per session at construction.
type Mode uint8

const (
	// ModeHashURL rewrites only the fragment portion of the host address.
	// This is the default.
	ModeHashURL Mode = iota

	// ModeStandard rewrites the full path of the host address.
	ModeStandard

	// ModeEmbedded keeps an internal navigation stack and never touches
	// the host address.
	ModeEmbedded
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeHashURL:
		return "hash-url"
	case ModeStandard:
		return "standard"
	case ModeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistory sets the host history implementation. Defaults to an
// in-memory history rooted at "/".
func WithHistory(h History) Option {
	return func(m *Manager) {
		m.history = h
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithInitialPath sets the starting path. Host-backed modes default to the
// path derived from the current history location; embedded mode defaults
// to "/".
func WithInitialPath(path string) Option {
	return func(m *Manager) {
		m.path = normalizePath(path)
	}
}

// Manager keeps the host page's visible address consistent with navigation
// state. All outbound path changes funnel through a single entry point so
// that host updates and UrlChanged emission cannot diverge.
type Manager struct {
	mode    Mode
	history History
	logger  *slog.Logger
	notify  func(path string)

	mu           sync.Mutex
	path         string
	suppressEcho bool
	stack        []string // embedded mode only
	index        int
	unlisten     func()
}

// NewManager creates a manager in the given mode. notify is invoked with
// the new path after every navigation that should reach the application
// process; it may be nil.
func NewManager(mode Mode, notify func(path string), opts ...Option) *Manager {
	m := &Manager{
		mode:   mode,
		notify: notify,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = NewMemoryHistory("/")
	}
	if m.path == "" {
		if mode == ModeEmbedded {
			m.path = "/"
		} else {
			m.path = m.extractPath(m.history.Location())
		}
	}
	if mode == ModeEmbedded {
		m.stack = []string{m.path}
	}
	return m
}

// Mode returns the routing mode.
func (m *Manager) Mode() Mode {
	return m.mode
}

// Path returns the current internal path.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Start begins observing host back/forward movement. It is a no-op in
// embedded mode and when already started.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeEmbedded || m.unlisten != nil {
		return
	}
	m.unlisten = m.history.Listen(m.handleHostChange)
}

// Close stops observing the host history. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	unlisten := m.unlisten
	m.unlisten = nil
	m.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}
}

// Navigate pushes a new path. The host history gains exactly one entry in
// host-backed modes, and the new path is emitted to the application
// process.
func (m *Manager) Navigate(path string) {
	m.navigate(path, false)
}

// Replace is Navigate without adding a history entry.
func (m *Manager) Replace(path string) {
	m.navigate(path, true)
}

// ApplyServerPath applies a path change pushed by the application process.
// The host history updates as with Navigate, but the change is not echoed
// back as UrlChanged.
func (m *Manager) ApplyServerPath(path string) {
	m.mu.Lock()
	m.suppressEcho = true
	m.mu.Unlock()

	m.navigate(path, false)
}

// Back moves one entry back. In embedded mode this walks the internal
// stack; otherwise it delegates to the host history, whose listener feeds
// the change back in.
func (m *Manager) Back() {
	if m.mode != ModeEmbedded {
		m.history.Back()
		return
	}
	m.step(-1)
}

// Forward moves one entry forward. See Back.
func (m *Manager) Forward() {
	if m.mode != ModeEmbedded {
		m.history.Forward()
		return
	}
	m.step(1)
}

// navigate is the single entry point for outbound path changes.
func (m *Manager) navigate(path string, replace bool) {
	path = normalizePath(path)

	m.mu.Lock()
	m.path = path
	switch m.mode {
	case ModeEmbedded:
		if replace {
			m.stack[m.index] = path
		} else {
			m.stack = append(m.stack[:m.index+1], path)
			m.index = len(m.stack) - 1
		}
	default:
		target := m.hostURL(path)
		if replace {
			m.history.Replace(target)
		} else {
			m.history.Push(target)
		}
	}
	fire := !m.suppressEcho
	m.suppressEcho = false
	notify := m.notify
	m.mu.Unlock()

	m.logger.Debug("navigated", "path", path, "mode", m.mode.String(), "replace", replace, "echo", fire)
	if fire && notify != nil {
		notify(path)
	}
}

// step moves through the embedded stack and emits the landing path.
func (m *Manager) step(delta int) {
	m.mu.Lock()
	next := m.index + delta
	if next < 0 || next >= len(m.stack) {
		m.mu.Unlock()
		return
	}
	m.index = next
	m.path = m.stack[next]
	path := m.path
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(path)
	}
}

// handleHostChange translates host back/forward movement into the same
// internal path update as Navigate and emits UrlChanged for it.
func (m *Manager) handleHostChange(rawURL string) {
	path := m.extractPath(rawURL)

	m.mu.Lock()
	if path == m.path {
		m.mu.Unlock()
		return
	}
	m.path = path
	notify := m.notify
	m.mu.Unlock()

	m.logger.Debug("host navigation", "path", path)
	if notify != nil {
		notify(path)
	}
}

// hostURL builds the host address for path according to the mode.
func (m *Manager) hostURL(path string) string {
	u, err := url.Parse(m.history.Location())
	if err != nil {
		u = &url.URL{}
	}
	rel, err := url.Parse(path)
	if err != nil {
		rel = &url.URL{Path: path}
	}
	switch m.mode {
	case ModeStandard:
		u.Path = rel.Path
		u.RawQuery = rel.RawQuery
		u.Fragment = ""
	default:
		frag := rel.Path
		if rel.RawQuery != "" {
			frag += "?" + rel.RawQuery
		}
		u.Fragment = frag
	}
	return u.String()
}

// extractPath recovers the internal path from a host address.
func (m *Manager) extractPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	if m.mode == ModeHashURL {
		return normalizePath(u.Fragment)
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

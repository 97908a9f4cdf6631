package devhost

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// ErrSessionClosed is returned by sends on a finished session.
var ErrSessionClosed = errors.New("devhost: session closed")

// Session is one live client connection. The codec is fixed by the first
// frame the client sends: text means JSON, binary means MessagePack, and
// replies use the same framing.
type Session struct {
	id   string
	host *Host
	conn *websocket.Conn

	logger *slog.Logger

	codec     protocol.Codec
	frameType int

	// mu guards writes to the connection.
	mu sync.Mutex

	// stMu guards path and theme, which application goroutines may read
	// while the read loop updates them.
	stMu  sync.Mutex
	path  string
	theme protocol.Theme

	greeted bool

	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(id string, h *Host, conn *websocket.Conn) *Session {
	return &Session{
		id:     id,
		host:   h,
		conn:   conn,
		logger: h.logger.With("session_id", id),
		path:   "/",
		theme:  protocol.ThemeLight,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Path returns the client's last reported path.
func (s *Session) Path() string {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.path
}

// Theme returns the effective theme from the handshake.
func (s *Session) Theme() protocol.Theme {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.theme
}

// ServerVersion returns the version string the host reports.
func (s *Session) ServerVersion() string {
	return s.host.version
}

// Render pushes a tree to the client.
func (s *Session) Render(tree *protocol.Element) error {
	return s.send(protocol.NewRender(tree))
}

// RenderAt annotates the tree with a navigation target and pushes it,
// moving the client to path. The tree is annotated in place.
func (s *Session) RenderAt(path string, tree *protocol.Element) error {
	if tree.Props == nil {
		tree.Props = map[string]any{}
	}
	tree.Props[protocol.NavigateProp] = path
	return s.Render(tree)
}

// Fail sends an error message. During a pending handshake the client
// treats it as a rejection; afterwards it ends the session.
func (s *Session) Fail(message string) error {
	return s.send(protocol.NewErrorMessage(message))
}

// Close tears the session down. Idempotent.
func (s *Session) Close() {
	s.teardown()
}

func (s *Session) send(msg protocol.Message) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.host.writeTimeout))
	err = s.conn.WriteMessage(s.frameType, data)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("write error", "error", err)
		s.teardown()
		return err
	}
	return nil
}

// run reads frames until the connection ends. It owns handshake state and
// dispatches application callbacks.
func (s *Session) run() {
	defer s.teardown()

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.host.readTimeout))

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}

		if s.codec == nil {
			if msgType == websocket.BinaryMessage {
				s.codec = protocol.MsgpackCodec{}
				s.frameType = websocket.BinaryMessage
			} else {
				s.codec = protocol.JSONCodec{}
				s.frameType = websocket.TextMessage
			}
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Error("decode error", "error", err)
			s.Fail("invalid message format")
			continue
		}

		switch m := msg.(type) {
		case *protocol.Hello:
			s.handleHello(m)

		case *protocol.Event:
			if !s.greeted {
				s.logger.Warn("event before handshake", "callback_id", m.CallbackID)
				continue
			}
			if tree := s.host.app.HandleEvent(s, m); tree != nil {
				s.Render(tree)
			}

		case *protocol.URLChanged:
			if !s.greeted {
				s.logger.Warn("urlChanged before handshake", "path", m.Path)
				continue
			}
			s.setPath(m.Path)
			if tree := s.host.app.HandleNavigate(s, m.Path); tree != nil {
				s.Render(tree)
			}

		default:
			s.logger.Warn("unexpected inbound message", "kind", msg.MessageKind())
		}
	}
}

func (s *Session) handleHello(m *protocol.Hello) {
	if s.greeted {
		s.logger.Warn("duplicate hello", "client_id", m.ClientID)
		return
	}

	s.stMu.Lock()
	if m.Path != "" {
		s.path = m.Path
	}
	s.theme = effectiveTheme(m)
	s.stMu.Unlock()

	s.greeted = true

	if err := s.send(protocol.NewHelloResponse(s.id, s.host.version)); err != nil {
		return
	}
	if tree := s.host.app.Mount(s); tree != nil {
		s.Render(tree)
	}
}

func (s *Session) setPath(path string) {
	s.stMu.Lock()
	s.path = path
	s.stMu.Unlock()
}

// effectiveTheme resolves the theme mode against the reported system theme.
func effectiveTheme(m *protocol.Hello) protocol.Theme {
	switch m.ThemeMode {
	case protocol.ThemeModeLight:
		return protocol.ThemeLight
	case protocol.ThemeModeDark:
		return protocol.ThemeDark
	default:
		return m.SystemTheme
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.mu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.host.writeTimeout))
		s.conn.Close()
		s.mu.Unlock()

		s.host.removeSession(s)
		s.host.app.Unmount(s)
	})
}

package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Socket transport defaults.
const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithCodec selects the wire codec. JSON by default; the msgpack codec
// switches the socket to binary frames.
func WithCodec(c protocol.Codec) SocketOption {
	return func(s *Socket) { s.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SocketOption {
	return func(s *Socket) { s.logger = l }
}

// WithDialer replaces the default gorilla dialer.
func WithDialer(d *websocket.Dialer) SocketOption {
	return func(s *Socket) { s.dialer = d }
}

// WithHeader adds HTTP headers to the dial request (cookies, auth).
func WithHeader(h http.Header) SocketOption {
	return func(s *Socket) { s.header = h }
}

// WithPingInterval sets the keepalive ping cadence. Pings are
// WebSocket-level control frames, invisible to the session protocol.
func WithPingInterval(d time.Duration) SocketOption {
	return func(s *Socket) { s.pingInterval = d }
}

// WithReadTimeout sets how long the socket waits for any inbound frame
// (pongs included) before declaring the medium lost.
func WithReadTimeout(d time.Duration) SocketOption {
	return func(s *Socket) { s.readTimeout = d }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) SocketOption {
	return func(s *Socket) { s.writeTimeout = d }
}

// Socket is the persistent WebSocket transport. Messages sent before
// Connect are buffered and flushed once the dial completes.
type Socket struct {
	url    string
	codec  protocol.Codec
	logger *slog.Logger
	dialer *websocket.Dialer
	header http.Header

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending [][]byte

	handler   Handler
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	reportOne sync.Once
}

// NewSocket creates a socket transport for the given ws:// or wss:// URL.
func NewSocket(url string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:          url,
		codec:        protocol.JSONCodec{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		dialer:       websocket.DefaultDialer,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler registers the receiver. Must be called before Connect.
func (s *Socket) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Connect dials the server, flushes any buffered sends, and starts the
// read and keepalive loops.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.handler == nil {
		s.mu.Unlock()
		return ErrNoHandler
	}
	if s.conn != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}

	s.mu.Lock()
	s.conn = conn
	pending := s.pending
	s.pending = nil

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	for _, data := range pending {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteMessage(s.frameType(), data); err != nil {
			s.mu.Unlock()
			s.teardown(err)
			return err
		}
	}
	s.mu.Unlock()

	go s.readLoop()
	go s.pingLoop()

	s.logger.Debug("socket connected", "url", s.url, "codec", s.codec.Name())
	return nil
}

// Send encodes and transmits one message. Before Connect it buffers; after
// Close it returns ErrClosed.
func (s *Socket) Send(msg protocol.Message) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn == nil {
		s.pending = append(s.pending, data)
		s.mu.Unlock()
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	err = s.conn.WriteMessage(s.frameType(), data)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("write error", "error", err)
		s.teardown(err)
		return err
	}
	return nil
}

// Close tears the socket down. Idempotent.
func (s *Socket) Close() error {
	s.teardown(nil)
	return nil
}

// frameType maps the codec to the WebSocket frame type.
func (s *Socket) frameType() int {
	if s.codec.Name() == "json" {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// teardown closes the medium and reports closure exactly once. err is nil
// for a local Close, non-nil for a medium failure.
func (s *Socket) teardown(err error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeTimeout))
			conn.Close()
		}

		s.report(err)
	})
}

// report delivers the closed hook exactly once, even when teardown races
// with a read failure.
func (s *Socket) report(err error) {
	s.reportOne.Do(func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h.HandleClosed(err)
		}
	})
}

// readLoop delivers inbound messages in receipt order until the medium
// fails or the socket closes.
func (s *Socket) readLoop() {
	s.mu.Lock()
	conn := s.conn
	h := s.handler
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				// Local close; the closed hook already fired with nil.
				err = nil
			} else if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			s.teardown(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Error("decode error", "error", err)
			h.HandleDecodeError(err)
			continue
		}
		h.HandleMessage(msg)
	}
}

// pingLoop sends WebSocket ping frames until the socket closes. Pong
// arrival refreshes the read deadline via the pong handler.
func (s *Socket) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
			if err != nil && !s.closed.Load() {
				s.logger.Error("ping error", "error", err)
				s.teardown(err)
				return
			}

		case <-s.done:
			return
		}
	}
}

package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/router"
)

// DispatchFunc processes one inbound session message. A non-nil error means
// the message violated the protocol; the violation has already been
// recorded in the store by the time the call returns.
type DispatchFunc func(msg protocol.Message) error

// Middleware wraps a DispatchFunc, observing every inbound message.
// Middlewares must not mutate messages.
type Middleware func(next DispatchFunc) DispatchFunc

// Chain applies middlewares around final so the first middleware observes
// the message first.
func Chain(final DispatchFunc, middlewares ...Middleware) DispatchFunc {
	d := final
	for i := len(middlewares) - 1; i >= 0; i-- {
		d = middlewares[i](d)
	}
	return d
}

// Dispatcher is a pure reducer over inbound messages. Its only side effects
// are store writes and the state transitions they carry; it performs no I/O.
// It is the store's single writer.
type Dispatcher struct {
	store  *Store
	router *router.Manager
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher writing to store. router receives
// server-driven navigation and may be nil; logger may be nil.
func NewDispatcher(store *Store, router *router.Manager, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{store: store, router: router, logger: logger}
}

// Dispatch reduces one message into the store.
//
// helloResponse completes a pending handshake. render replaces the tree
// wholesale and forwards any navigation signal to the router. error records
// the text and fails the session without closing the transport. Anything
// else inbound is a protocol violation, reported, never silently dropped —
// except in a session that is already over, where messages are logged and
// discarded.
func (d *Dispatcher) Dispatch(msg protocol.Message) error {
	if msg == nil {
		return d.violation("nil message")
	}

	switch m := msg.(type) {
	case *protocol.HelloResponse:
		if !d.store.SetConnected(m.SessionID, m.ServerVersion) {
			return d.violation("helloResponse in state %s", d.store.State())
		}
		d.logger.Debug("handshake complete",
			"session_id", m.SessionID, "server_version", m.ServerVersion)
		return nil

	case *protocol.Render:
		switch state := d.store.State(); state {
		case StateConnected:
			d.store.SetTree(m.Tree)
			d.forwardNavigation(m.Tree)
			return nil
		case StateConnecting:
			return d.violation("render before handshake completed")
		default:
			d.logger.Debug("render discarded", "state", state.String())
			return nil
		}

	case *protocol.ErrorMessage:
		if d.store.SetError(m.Message) {
			d.logger.Warn("application error", "message", m.Message)
		} else {
			d.logger.Debug("error message discarded after disconnect", "message", m.Message)
		}
		return nil

	default:
		if d.store.State().Terminal() {
			d.logger.Debug("message discarded", "kind", string(msg.MessageKind()))
			return nil
		}
		return d.violation("unexpected inbound message kind %q", msg.MessageKind())
	}
}

// DecodeError reduces a transport decode failure. Unknown kinds and
// malformed payloads are protocol errors, reported like any other
// violation.
func (d *Dispatcher) DecodeError(err error) error {
	var unknown *protocol.UnknownKindError
	if errors.As(err, &unknown) {
		return d.violation("unknown message kind %q", unknown.Kind)
	}
	return d.violation("malformed message: %v", err)
}

// TransportLost reduces loss of the medium. A nil err means a local close,
// which the session owner already recorded; anything else fails the
// session.
func (d *Dispatcher) TransportLost(err error) {
	if err == nil {
		return
	}
	if d.store.SetError("transport: " + err.Error()) {
		d.logger.Warn("transport lost", "error", err)
	}
}

// forwardNavigation hands a server-pushed path to the router with echo
// suppression. The signal rides as a reserved root prop and is not part of
// the rendered UI.
func (d *Dispatcher) forwardNavigation(tree *protocol.Element) {
	if tree == nil || d.router == nil {
		return
	}
	path, ok := tree.Props[protocol.NavigateProp].(string)
	if !ok || path == "" {
		return
	}
	d.logger.Debug("server navigation", "path", path)
	d.router.ApplyServerPath(path)
}

// violation records a protocol violation in the store and returns it.
func (d *Dispatcher) violation(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	d.logger.Error("protocol violation", "error", err)
	d.store.SetError(err.Error())
	return err
}

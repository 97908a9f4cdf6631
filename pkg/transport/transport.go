package transport

import (
	"context"
	"errors"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Transport errors.
var (
	// ErrClosed is returned by Send after the transport closed.
	ErrClosed = errors.New("transport: closed")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("transport: already connected")
	// ErrNoHandler is returned by Connect when no handler is registered.
	ErrNoHandler = errors.New("transport: no handler registered")
)

// Handler receives everything a transport delivers. Calls arrive from a
// single goroutine per transport, in medium order.
type Handler interface {
	// HandleMessage delivers one decoded session message.
	HandleMessage(protocol.Message)
	// HandleDecodeError reports a payload that could not be decoded,
	// including unknown message kinds. The payload is not delivered;
	// the session decides whether the failure is fatal.
	HandleDecodeError(error)
	// HandleClosed reports loss of the medium, exactly once per
	// transport. err is nil when the closure was a local Close call.
	HandleClosed(error)
}

// Transport moves session messages across one medium. Implementations must
// preserve medium order on delivery and tolerate Send before Connect by
// buffering.
type Transport interface {
	// SetHandler registers the receiver. Must be called before Connect.
	SetHandler(Handler)
	// Connect establishes the medium and starts delivery.
	Connect(ctx context.Context) error
	// Send transmits one message. Safe for concurrent use.
	Send(protocol.Message) error
	// Close tears the medium down. Idempotent; the handler's closed hook
	// fires exactly once regardless of how many times Close runs.
	Close() error
}

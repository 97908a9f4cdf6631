package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// ErrSevered is reported to the closed hook of the endpoint that did not
// initiate the close. For the survivor the medium is lost, not released.
var ErrSevered = errors.New("transport: pipe closed by peer")

// pipeBuffer is the per-direction capacity of an in-process pipe. Sends
// beyond it block until the peer drains, which keeps a runaway producer
// from growing memory without bound.
const pipeBuffer = 64

// pipeCore is the shared half of a pipe pair. Closing either endpoint
// closes the core, and with it both endpoints, exactly once.
type pipeCore struct {
	once sync.Once
	done chan struct{}
	aToB chan protocol.Message
	bToA chan protocol.Message
}

func (c *pipeCore) close() {
	c.once.Do(func() { close(c.done) })
}

// Pipe is one endpoint of an in-process transport pair. It moves messages
// as Go values with no serialization, making it the natural adapter for
// embedding the application process in the same binary and for tests.
type Pipe struct {
	name string
	core *pipeCore
	send chan protocol.Message
	recv chan protocol.Message

	mu         sync.Mutex
	handler    Handler
	connected  bool
	localClose atomic.Bool
	reportOne  sync.Once
}

// NewPipe creates a connected transport pair. Messages sent on one
// endpoint are delivered to the other in send order. Sends before Connect
// are held by the channel buffer and delivered once the peer connects.
func NewPipe() (*Pipe, *Pipe) {
	core := &pipeCore{
		done: make(chan struct{}),
		aToB: make(chan protocol.Message, pipeBuffer),
		bToA: make(chan protocol.Message, pipeBuffer),
	}
	a := &Pipe{name: "a", core: core, send: core.aToB, recv: core.bToA}
	b := &Pipe{name: "b", core: core, send: core.bToA, recv: core.aToB}
	return a, b
}

// SetHandler registers the receiver. Must be called before Connect.
func (p *Pipe) SetHandler(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Connect starts delivery to the registered handler.
func (p *Pipe) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler == nil {
		return ErrNoHandler
	}
	if p.connected {
		return ErrAlreadyConnected
	}
	select {
	case <-p.core.done:
		return ErrClosed
	default:
	}
	p.connected = true
	go p.deliverLoop(p.handler)
	return nil
}

// Send passes one message to the peer. It blocks when the peer is more
// than pipeBuffer messages behind.
func (p *Pipe) Send(msg protocol.Message) error {
	select {
	case <-p.core.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- msg:
		return nil
	case <-p.core.done:
		return ErrClosed
	}
}

// Close closes both endpoints of the pair. Idempotent. The peer's closed
// hook receives ErrSevered; this endpoint's own hook receives nil.
func (p *Pipe) Close() error {
	p.localClose.Store(true)
	p.core.close()
	return nil
}

// deliverLoop hands inbound messages to the handler in order. On closure
// it drains what the peer already sent, then reports closed once.
func (p *Pipe) deliverLoop(h Handler) {
	for {
		select {
		case msg := <-p.recv:
			h.HandleMessage(msg)
		case <-p.core.done:
			for {
				select {
				case msg := <-p.recv:
					h.HandleMessage(msg)
				default:
					p.reportClosed(h)
					return
				}
			}
		}
	}
}

func (p *Pipe) reportClosed(h Handler) {
	p.reportOne.Do(func() {
		if p.localClose.Load() {
			h.HandleClosed(nil)
		} else {
			h.HandleClosed(ErrSevered)
		}
	})
}

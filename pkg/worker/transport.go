package worker

import (
	"context"
	"sync"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

// inboundBuffer bounds session messages queued between the bridge's read
// goroutine and the delivery goroutine. The bridge blocks when it fills.
const inboundBuffer = 64

type inbound struct {
	msg protocol.Message
	err error
}

// workerTransport is the session plane of one worker, a transport.Transport
// over the bridge. It exists from NewRunner on but refuses traffic until
// the runtime is ready; Close tears down the whole worker, because the
// session cannot outlive the interpreter that renders it.
type workerTransport struct {
	runner *Runner

	mu        sync.Mutex
	handler   transport.Handler
	connected bool
	closed    bool
	closeErr  error

	queue      chan inbound
	done       chan struct{}
	reportOnce sync.Once
}

func newWorkerTransport(r *Runner) *workerTransport {
	return &workerTransport{
		runner: r,
		queue:  make(chan inbound, inboundBuffer),
		done:   make(chan struct{}),
	}
}

// SetHandler registers the receiver. Must be called before Connect.
func (t *workerTransport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Connect starts delivery of queued and future session messages. The
// runtime must be ready; a transport severed by worker death returns the
// death error so the caller sees why.
func (t *workerTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		err := t.closeErr
		t.mu.Unlock()
		if err != nil {
			return err
		}
		return transport.ErrClosed
	}
	if t.handler == nil {
		t.mu.Unlock()
		return transport.ErrNoHandler
	}
	if t.connected {
		t.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	if !t.runner.Ready() {
		t.mu.Unlock()
		return ErrNotReady
	}
	t.connected = true
	h := t.handler
	t.mu.Unlock()

	go t.deliver(h)
	return nil
}

// Send writes one session message to the worker.
func (t *workerTransport) Send(msg protocol.Message) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if !t.runner.Ready() {
		return ErrNotReady
	}
	return t.runner.sendSession(msg)
}

// Close terminates the worker. Idempotent.
func (t *workerTransport) Close() error {
	t.runner.Terminate()
	return nil
}

// closeWith severs the transport. A nil err is local teardown; non-nil is
// reported to the handler as loss of the peer.
func (t *workerTransport) closeWith(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	t.mu.Unlock()
	close(t.done)
}

// enqueueMessage hands an inbound session message to the delivery queue.
// Called from the bridge's read goroutine, so queue order is stream order.
func (t *workerTransport) enqueueMessage(msg protocol.Message) {
	t.enqueue(inbound{msg: msg})
}

func (t *workerTransport) enqueueError(err error) {
	t.enqueue(inbound{err: err})
}

func (t *workerTransport) enqueue(in inbound) {
	select {
	case t.queue <- in:
	case <-t.done:
	}
}

// deliver drains the queue to the handler until the transport closes, then
// drains what arrived before the close and reports closure exactly once.
func (t *workerTransport) deliver(h transport.Handler) {
	for {
		select {
		case in := <-t.queue:
			t.dispatch(h, in)
		case <-t.done:
			for {
				select {
				case in := <-t.queue:
					t.dispatch(h, in)
				default:
					t.reportOnce.Do(func() {
						t.mu.Lock()
						err := t.closeErr
						t.mu.Unlock()
						h.HandleClosed(err)
					})
					return
				}
			}
		}
	}
}

func (t *workerTransport) dispatch(h transport.Handler, in inbound) {
	if in.err != nil {
		h.HandleDecodeError(in.err)
		return
	}
	h.HandleMessage(in.msg)
}

package client

import "sync"

// ConnState is the connection lifecycle state of one session.
type ConnState uint8

const (
	// StateDisconnected is the initial state, and the state after an
	// explicit disconnect.
	StateDisconnected ConnState = iota

	// StateConnecting means the handshake request has been sent and the
	// response is pending.
	StateConnecting

	// StateConnected means the handshake completed and the session is live.
	StateConnected

	// StateError means the session failed: a protocol error, a transport
	// loss, or an application error message. Terminal for the session.
	StateError
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is over. Neither error nor
// disconnected is left except by explicit disconnect; reconnection is a new
// session with a new client id.
func (s ConnState) Terminal() bool {
	return s == StateDisconnected || s == StateError
}

// allowed reports whether a transition from one state to another is legal.
// connected never regresses to connecting, and error is reachable only
// from a live session.
func allowed(from, to ConnState) bool {
	switch to {
	case StateConnecting:
		return from == StateDisconnected
	case StateConnected:
		return from == StateConnecting
	case StateError:
		return from == StateConnecting || from == StateConnected
	case StateDisconnected:
		return from != StateDisconnected
	}
	return false
}

type stateSub struct {
	id int
	fn func(old, next ConnState)
}

// StateMachine owns a session's ConnState. Transitions are validated, and
// every transition notifies subscribers synchronously in registration
// order before the transition call returns.
type StateMachine struct {
	mu     sync.Mutex
	state  ConnState
	subs   []stateSub
	nextID int
}

// NewStateMachine creates a machine in StateDisconnected.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateDisconnected}
}

// Current returns the current state.
func (m *StateMachine) Current() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to run on every transition. The returned function
// removes the subscription and is safe to call more than once.
func (m *StateMachine) Subscribe(fn func(old, next ConnState)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, stateSub{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// To transitions to next if legal, notifying subscribers before returning.
// It reports whether the transition happened.
func (m *StateMachine) To(next ConnState) bool {
	fire, ok := m.transition(next)
	if ok {
		fire()
	}
	return ok
}

// transition validates and applies the state change, returning the pending
// notification for the caller to fire once its own bookkeeping is
// consistent. The Store uses this to publish field writes and the state
// change as one atomic update.
func (m *StateMachine) transition(next ConnState) (fire func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed(m.state, next) {
		return nil, false
	}
	old := m.state
	m.state = next

	subs := make([]stateSub, len(m.subs))
	copy(subs, m.subs)
	return func() {
		for _, sub := range subs {
			sub.fn(old, next)
		}
	}, true
}

// clear drops all subscriptions. Store.Close uses it so a dead session
// holds no references to its subscribers.
func (m *StateMachine) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = nil
}

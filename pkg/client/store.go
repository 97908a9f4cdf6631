package client

import (
	"sync"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Snapshot is an immutable view of the store. The Tree pointer is shared
// with the store; render messages are never mutated, so readers may hold it
// across notifications.
type Snapshot struct {
	State         ConnState
	Tree          *protocol.Element
	SessionID     string
	ServerVersion string
	Err           string
}

type storeSub struct {
	id int
	fn func(Snapshot)
}

// Store holds everything a session knows: the current element tree (nil
// before the first render), the connection state, the session identity and
// the last error text. It has exactly one writer, the dispatcher; all other
// components read snapshots. Each mutator applies its writes atomically and
// fires exactly one notification cycle.
//
// Stores are constructed per client. There is no process-wide default, so
// tests build isolated instances.
type Store struct {
	machine *StateMachine

	mu            sync.Mutex
	tree          *protocol.Element
	sessionID     string
	serverVersion string
	lastError     string
	subs          []storeSub
	nextID        int
	closed        bool
}

// NewStore creates an empty store in StateDisconnected.
func NewStore() *Store {
	return &Store{machine: NewStateMachine()}
}

// State returns the current connection state.
func (s *Store) State() ConnState {
	return s.machine.Current()
}

// Tree returns the current element tree, nil before the first render.
func (s *Store) Tree() *protocol.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Snapshot returns a consistent view of all fields.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:         s.machine.Current(),
		Tree:          s.tree,
		SessionID:     s.sessionID,
		ServerVersion: s.serverVersion,
		Err:           s.lastError,
	}
}

// Subscribe registers fn to receive a snapshot after every applied message.
// The returned function removes the subscription; it is safe to call more
// than once. Subscribing to a closed store is a no-op.
func (s *Store) Subscribe(fn func(Snapshot)) (remove func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, storeSub{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeState registers fn on the underlying state machine. Transitions
// notify synchronously in registration order.
func (s *Store) SubscribeState(fn func(old, next ConnState)) (remove func()) {
	return s.machine.Subscribe(fn)
}

// SetConnecting records that the handshake request went out. It reports
// false if the session is not fresh.
func (s *Store) SetConnecting() bool {
	return s.apply(StateConnecting, nil)
}

// SetConnected records the handshake response. It reports false if the
// handshake was not pending, which callers treat as a protocol violation.
func (s *Store) SetConnected(sessionID, serverVersion string) bool {
	return s.apply(StateConnected, func() {
		s.sessionID = sessionID
		s.serverVersion = serverVersion
	})
}

// SetTree replaces the element tree wholesale. The previous tree is
// discarded; no merging occurs. It reports false unless the session is
// connected.
func (s *Store) SetTree(tree *protocol.Element) bool {
	s.mu.Lock()
	if s.closed || s.machine.Current() != StateConnected {
		s.mu.Unlock()
		return false
	}
	s.tree = tree
	snap := s.snapshotLocked()
	subs := s.subsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}

// SetError records an error and moves the machine to StateError. In an
// already-failed session only the text updates (the last error wins). It
// reports false after disconnect, when errors no longer matter.
func (s *Store) SetError(msg string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	fire := func() {}
	switch s.machine.Current() {
	case StateConnecting, StateConnected:
		fire, _ = s.machine.transition(StateError)
	case StateError:
		// Keep the newest text; no transition to announce.
	default:
		s.mu.Unlock()
		return false
	}
	s.lastError = msg
	snap := s.snapshotLocked()
	subs := s.subsLocked()
	s.mu.Unlock()

	fire()
	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}

// SetDisconnected records an explicit disconnect. Reports false when
// already disconnected.
func (s *Store) SetDisconnected() bool {
	return s.apply(StateDisconnected, nil)
}

// Close releases all subscribers. The store remains readable, but no
// further notifications fire and mutators become no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.subs = nil
	s.mu.Unlock()
	s.machine.clear()
}

// apply runs a state transition plus optional field writes as one atomic
// update with one notification cycle: machine subscribers first, then store
// subscribers.
func (s *Store) apply(next ConnState, writes func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	fire, ok := s.machine.transition(next)
	if !ok {
		s.mu.Unlock()
		return false
	}
	if writes != nil {
		writes()
	}
	snap := s.snapshotLocked()
	subs := s.subsLocked()
	s.mu.Unlock()

	fire()
	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}

func (s *Store) subsLocked() []storeSub {
	subs := make([]storeSub, len(s.subs))
	copy(subs, s.subs)
	return subs
}

package client

import (
	"testing"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// connect walks a fresh store to the connected state.
func connect(t *testing.T, s *Store) {
	t.Helper()
	if !s.SetConnecting() {
		t.Fatal("SetConnecting() = false on fresh store")
	}
	if !s.SetConnected("sess-1", "0.1.0") {
		t.Fatal("SetConnected() = false while connecting")
	}
}

func TestStoreHandshakeWrites(t *testing.T) {
	s := NewStore()
	connect(t, s)

	snap := s.Snapshot()
	if snap.State != StateConnected {
		t.Errorf("State = %s, want connected", snap.State)
	}
	if snap.SessionID != "sess-1" || snap.ServerVersion != "0.1.0" {
		t.Errorf("identity = %q/%q, want sess-1/0.1.0", snap.SessionID, snap.ServerVersion)
	}
	if snap.Tree != nil {
		t.Errorf("Tree = %v, want nil before first render", snap.Tree)
	}
}

func TestStoreSecondRenderReplacesWholesale(t *testing.T) {
	s := NewStore()
	connect(t, s)

	r1 := protocol.NewElement("column", nil,
		protocol.NewElement("text", map[string]any{protocol.TextProp: "one"}),
		protocol.NewElement("text", map[string]any{protocol.TextProp: "two"}),
	)
	r2 := protocol.NewElement("row", nil)

	s.SetTree(r1)
	s.SetTree(r2)

	if got := s.Tree(); got != r2 {
		t.Errorf("Tree() = %+v, want the second tree exactly", got)
	}
	if len(s.Tree().Children) != 0 {
		t.Error("second tree inherited children from the first")
	}
}

func TestStoreOneNotificationPerMessage(t *testing.T) {
	s := NewStore()

	var snaps []Snapshot
	s.Subscribe(func(snap Snapshot) { snaps = append(snaps, snap) })

	s.SetConnecting()
	s.SetConnected("sess-1", "0.1.0")
	s.SetTree(protocol.NewElement("box", nil))
	s.SetError("boom")
	s.SetDisconnected()

	if len(snaps) != 5 {
		t.Fatalf("notifications = %d, want exactly one per applied message", len(snaps))
	}
	// Each snapshot is complete at the moment of delivery: the handshake
	// notification already carries the session identity.
	if snaps[1].State != StateConnected || snaps[1].SessionID != "sess-1" {
		t.Errorf("handshake snapshot = %+v, want connected with identity", snaps[1])
	}
	if snaps[2].Tree == nil {
		t.Error("render snapshot missing tree")
	}
	if snaps[3].State != StateError || snaps[3].Err != "boom" {
		t.Errorf("error snapshot = %+v", snaps[3])
	}
}

func TestStoreStateBeforeStoreSubscribers(t *testing.T) {
	s := NewStore()

	var order []string
	s.SubscribeState(func(_, next ConnState) { order = append(order, "state:"+next.String()) })
	s.Subscribe(func(snap Snapshot) { order = append(order, "store:"+snap.State.String()) })

	s.SetConnecting()

	if len(order) != 2 || order[0] != "state:connecting" || order[1] != "store:connecting" {
		t.Errorf("order = %v, want machine subscribers first", order)
	}
}

func TestStoreRejectsTreeUnlessConnected(t *testing.T) {
	s := NewStore()
	tree := protocol.NewElement("box", nil)

	if s.SetTree(tree) {
		t.Error("SetTree accepted while disconnected")
	}
	s.SetConnecting()
	if s.SetTree(tree) {
		t.Error("SetTree accepted while connecting")
	}
	connectRest(t, s)
	if !s.SetTree(tree) {
		t.Error("SetTree rejected while connected")
	}
	s.SetDisconnected()
	if s.SetTree(tree) {
		t.Error("SetTree accepted after disconnect")
	}
}

// connectRest finishes a handshake already in the connecting state.
func connectRest(t *testing.T, s *Store) {
	t.Helper()
	if !s.SetConnected("sess-1", "0.1.0") {
		t.Fatal("SetConnected() = false while connecting")
	}
}

func TestStoreErrorStates(t *testing.T) {
	t.Run("while connecting", func(t *testing.T) {
		s := NewStore()
		s.SetConnecting()
		if !s.SetError("rejected") {
			t.Fatal("SetError() = false while connecting")
		}
		if got := s.State(); got != StateError {
			t.Errorf("State() = %s, want error", got)
		}
	})

	t.Run("last error wins", func(t *testing.T) {
		s := NewStore()
		connect(t, s)
		s.SetError("first")
		notified := 0
		s.Subscribe(func(Snapshot) { notified++ })
		if !s.SetError("second") {
			t.Fatal("SetError() = false in error state")
		}
		if got := s.Snapshot().Err; got != "second" {
			t.Errorf("Err = %q, want the newest text", got)
		}
		if notified != 1 {
			t.Errorf("notifications = %d, want 1", notified)
		}
	})

	t.Run("dropped after disconnect", func(t *testing.T) {
		s := NewStore()
		connect(t, s)
		s.SetDisconnected()
		if s.SetError("late") {
			t.Error("SetError accepted after disconnect")
		}
		if got := s.Snapshot().Err; got != "" {
			t.Errorf("Err = %q, want empty", got)
		}
	})
}

func TestStoreKeepsTreeOnError(t *testing.T) {
	s := NewStore()
	connect(t, s)
	tree := protocol.NewElement("box", nil)
	s.SetTree(tree)

	s.SetError("process crashed")

	if got := s.Tree(); got != tree {
		t.Error("error rolled back the last successful tree")
	}
}

func TestStoreCloseReleasesSubscribers(t *testing.T) {
	s := NewStore()
	storeCalls, stateCalls := 0, 0
	s.Subscribe(func(Snapshot) { storeCalls++ })
	s.SubscribeState(func(ConnState, ConnState) { stateCalls++ })

	s.Close()
	s.SetConnecting()

	if storeCalls != 0 || stateCalls != 0 {
		t.Errorf("closed store notified subscribers: store=%d state=%d", storeCalls, stateCalls)
	}
	if remove := s.Subscribe(func(Snapshot) {}); remove == nil {
		t.Error("Subscribe on closed store returned nil remover")
	}
	if got := s.State(); got != StateDisconnected {
		t.Errorf("mutator ran on closed store: state = %s", got)
	}
}

func TestStoreSubscribeRemove(t *testing.T) {
	s := NewStore()
	calls := 0
	remove := s.Subscribe(func(Snapshot) { calls++ })

	s.SetConnecting()
	remove()
	remove()
	s.SetConnected("sess-1", "0.1.0")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

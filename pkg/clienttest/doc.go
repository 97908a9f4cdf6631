// Package clienttest provides testing helpers for Trellis clients.
//
// The package reduces boilerplate when testing widgets and session flows by
// coupling a client under test with a scripted application double over an
// in-process pipe. No server, no sockets, no interpreter.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    s := clienttest.Connect(t)
//	    s.App.Render(counterTree(0))
//	    s.AwaitRender(t)
//
//	    root := s.MustRender(t)
//	    clienttest.ExpectText(t, root, "Count: 0")
//
//	    clienttest.Invoke(t, root, "button", "onClick")
//	    evt := s.App.AwaitEvent(t)
//	    s.App.Render(counterTree(1))
//	    s.AwaitRender(t)
//	    clienttest.ExpectText(t, s.MustRender(t), "Count: 1")
//	    _ = evt
//	}
//
// # Scripting the App
//
// The FakeApp records everything the client sends and pushes whatever the
// script decides:
//
//	s.App.Render(tree)              // push a new UI
//	s.App.RenderAt("/next", tree)   // push a UI that also navigates
//	s.App.SendError("boom")         // fail the session
//	s.App.SimulateCrash()           // sever the pipe mid-session
//
// Handshakes complete automatically. To exercise the pending state, build
// the session with manual handshake and accept (or reject) explicitly:
//
//	s := clienttest.NewSession(t, clienttest.WithAppOptions(
//	    clienttest.WithManualHandshake(),
//	))
//
// # Assertions
//
// Assertions operate on the materialized UI tree:
//
//	clienttest.ExpectText(t, root, "Welcome")
//	btn := clienttest.ExpectTag(t, root, "button")
//	clienttest.ExpectProp(t, root, "button", "variant", "primary")
//
// Invoke and SetBinding drive resolved callbacks and bindings the way a
// user interaction would, which makes round-trip tests read like scripts:
// interact, await the event, push the next render, assert.
package clienttest

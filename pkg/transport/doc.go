// Package transport carries session messages between the client runtime and
// the application-logic process. A transport is a dumb pipe: it moves whole
// messages in medium order, reports medium loss exactly once, and knows
// nothing about handshakes, trees or routing.
//
// Two adapters live here: Socket, a persistent WebSocket connection
// (gorilla/websocket), and Pipe, an in-process channel pair for embedding
// the application process in the same binary. The third adapter, the
// sandboxed worker runtime, lives in package worker because it also owns a
// subprocess lifecycle.
//
// All adapters share the same contract:
//
//	t := transport.NewSocket("wss://app.example.com/session")
//	t.SetHandler(h)                 // before Connect
//	if err := t.Connect(ctx); err != nil {
//	    // dial failed
//	}
//	t.Send(protocol.NewHello(...))  // safe before Connect: buffered
//	t.Close()                       // idempotent
//
// Handler methods are invoked from a single goroutine per transport, in the
// exact order the medium delivered the payloads. No reordering, batching or
// retry happens at this layer.
package transport

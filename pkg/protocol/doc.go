// Package protocol defines the session protocol spoken between a Trellis
// client and the application-logic process that drives it.
//
// The protocol is deliberately small: the application process owns all state
// and behavior, so the wire carries only six message kinds. The client
// receives full UI descriptions and reports interactions back by opaque
// callback id; it never receives code and never executes anything on the
// application's behalf.
//
// # Message Kinds
//
//   - hello: client → app, opens the session (client id, theme, path)
//   - helloResponse: app → client, completes the handshake (session id)
//   - render: app → client, full element tree replacing the previous one
//   - error: app → client, session-fatal failure report
//   - event: client → app, a callback invocation (callback id + args)
//   - urlChanged: client → app, the address changed on the client side
//
// # Handshake
//
// Session establishment is a single request/response exchange:
//
//	Client                          App process
//	  │                                │
//	  │──── hello ───────────────────>│
//	  │     (clientId, theme, path)   │
//	  │                                │
//	  │<──── helloResponse ───────────│
//	  │     (sessionId, version)      │
//	  │                                │
//
// helloResponse is the only message the app may send before the session is
// established. After it, render flows app → client and event/urlChanged flow
// client → app with no acknowledgments in either direction.
//
// # Wire Format
//
// Every message is a single object carrying a "type" tag alongside its
// fields, for example:
//
//	{"type": "event", "callbackId": "cb-12", "args": [1, "a"]}
//
// Two codecs produce that object: JSONCodec (the default; what browser
// clients speak) and MsgpackCodec (MessagePack, for bandwidth-sensitive
// socket deployments). Both use the same field names; a session uses exactly
// one codec, negotiated out of band by the transport configuration.
//
// # Element Trees
//
// A render message carries the complete UI description as a tree of Element
// values. Element props hold JSON-ish values: primitives, nested elements,
// and two marker shapes the client resolves at render time:
//
//	{"__callback__": "cb-42"}             callback reference
//	{"__mutable__": "mu-7", "value": v}   two-way binding
//
// Markers are opaque handles into the application process. AsCallbackRef,
// AsMutable and AsElement recognize the marker shapes regardless of whether
// they arrive as typed values or as generic maps from a codec.
//
// # Worker Control Plane
//
// When the application process runs inside a sandboxed worker runtime, a
// second, private message family manages the runtime lifecycle: init, run,
// status, ready and error. Control messages never mix with session messages;
// the worker bridge frames the two planes separately. They are always JSON,
// independent of the session codec.
//
// # Usage Example
//
//	codec := protocol.JSONCodec{}
//
//	data, err := codec.Encode(protocol.NewEvent("cb-12", []any{1, "a"}))
//	if err != nil {
//	    // handle error
//	}
//
//	msg, err := codec.Decode(data)
//	if err != nil {
//	    // handle error (unknown kinds decode to *UnknownKindError)
//	}
package protocol

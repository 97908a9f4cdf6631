// Package client implements the session runtime: the connection state
// machine, the reactive store, the message dispatcher, and the Client that
// wires them to a transport and a router.
//
// # Lifecycle
//
//	disconnected ──Connect()──▶ connecting ──helloResponse──▶ connected
//	      ▲                         │                             │
//	      │                         │ error message,              │
//	      │                         │ protocol violation,         │
//	      │                         ▼ transport loss              ▼
//	      └────Disconnect()──── error ◀───────────────────────────┘
//
// error and disconnected are terminal: the core never reconnects on its
// own. Retry means discarding the failed client and building a new one
// (NewSession), which gets a fresh client id and a fresh handshake.
//
// # Single Writer
//
// The store has exactly one writer, the dispatcher, which runs on the
// client's event-loop goroutine in transport delivery order. Everything
// else reads Snapshot values or subscribes. Store notifications fire once
// per applied message, after all of that message's writes are visible.
//
// # Usage
//
//	c := client.NewClient(tr,
//	    client.WithRoutingMode(router.ModeHashURL),
//	    client.WithTheme(protocol.ThemeDark),
//	)
//	if err := c.Connect(ctx); err != nil {
//	    // handshake failed; c is dead, build a new session to retry
//	}
//	defer c.Disconnect()
//
//	remove := c.Store().Subscribe(func(snap client.Snapshot) {
//	    host.Apply(c.Render())
//	})
//	defer remove()
package client

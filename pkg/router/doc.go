// Package router reconciles the host page's address and history with
// server-driven navigation.
//
// The router provides:
//   - Three routing modes: hash-fragment, standard path, and embedded
//   - A single navigation entry point shared by user- and server-originated
//     path changes
//   - Echo suppression so server-pushed paths do not bounce back as
//     UrlChanged messages
//   - A History abstraction with an in-memory implementation for hosts
//     without a real address bar (and for tests)
//
// # Routing Modes
//
// ModeHashURL (the default) rewrites only the fragment portion of the host
// address, so "/users" becomes "https://host/page#/users". It works in any
// hosting environment because the host never routes on the fragment.
//
// ModeStandard rewrites the full path. It requires that the hosting
// environment route arbitrary paths back to this client.
//
// ModeEmbedded keeps an internal-only history stack and never touches the
// host address, for clients embedded inside another page's routing.
//
// # Echo Suppression
//
// Every outbound path change funnels through one entry point that updates
// internal state, updates host history when the mode allows it, and emits
// the new path to the application process. When the change originated from
// a server-pushed render, ApplyServerPath arms a one-shot suppression flag
// so the emission step is skipped exactly once. Without it the client would
// echo every server navigation back as UrlChanged and the process would
// respond with another render, looping forever.
//
// # Usage
//
//	hist := router.NewMemoryHistory("https://host/app")
//	m := router.NewManager(router.ModeHashURL, sendURLChanged,
//	    router.WithHistory(hist))
//	m.Start()
//	defer m.Close()
//
//	m.Navigate("/users")        // pushes #/users, emits UrlChanged
//	m.ApplyServerPath("/home")  // pushes #/home, emits nothing
package router

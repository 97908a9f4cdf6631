// Package errors provides structured, actionable error messages for Trellis.
//
// The errors package implements an error system that:
//   - Explains what went wrong in plain language
//   - Shows source locations when an application file is involved
//   - Suggests how to fix issues, with examples where they help
//   - Links to documentation for deeper understanding
//
// # Error Categories
//
// Errors are organized into categories:
//   - protocol: session and message errors (rejected handshakes, malformed frames)
//   - transport: connection errors (WebSocket failures, severed pipes)
//   - bootstrap: worker startup errors (interpreter spawn, package installs)
//   - config: trellis.json problems
//   - cli: command-line usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "T201") that maps to:
//   - A short message describing the error
//   - A detailed explanation
//   - A documentation URL
//
// # Usage
//
//	err := errors.New("T301").
//	    Wrap(spawnErr).
//	    WithSuggestion("Install the interpreter or set worker.interpreter in trellis.json")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR T301: Interpreter not found
//	//
//	//   The sandboxed interpreter executable could not be spawned. It may
//	//   not be installed or not on PATH.
//	//
//	//   Caused by: exec: "trellis-runtime": executable file not found in $PATH
//	//
//	//   Hint: Install the interpreter or set worker.interpreter in trellis.json
//	//
//	//   Learn more: https://trellis.dev/docs/errors/T301
package errors

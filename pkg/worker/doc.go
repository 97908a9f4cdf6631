// Package worker runs application code in a sandboxed interpreter
// subprocess and exposes it as a session transport.
//
// A Runner owns one interpreter. Create spawns the process and drives
// bootstrap; Run submits application source; Transport returns the session
// plane for a client to connect to; Terminate kills the process group and
// removes any fetched package blobs. A runner is single-use: after
// Terminate, or after any Create or bootstrap failure, build a fresh one.
//
// # Stdio contract
//
// The worker's stdin and stdout carry newline-delimited JSON frames and
// nothing else; the shim redirects application prints to stderr, which the
// runner captures for error reports. Each frame holds exactly one plane:
//
//	{"ctl": {...}}   lifecycle control: init, run, status, ready, error
//	{"msg": {...}}   session messages: hello, render, event, ...
//
// Control messages never mix with session messages, so a misbehaving app
// cannot spoof lifecycle signals.
//
// # Bootstrap
//
// Create sends init and then waits for ready, bounded by the init timeout
// (DefaultInitTimeout). Status frames report progress through the spawn,
// runtime and packages phases. A failure at any phase produces a
// *BootstrapError carrying the phase, a best-effort cause classified from
// the failure text, an actionable hint and the tail of the worker's stderr.
package worker

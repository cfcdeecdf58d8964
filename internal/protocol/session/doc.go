// Package session owns the client transport: dialing an IRC endpoint over
// plain TCP or TLS and the duplex stream the engine reads and writes.
//
// Ownership boundary:
// - two-phase dial (tcp connect, tls handshake) with per-leg errors
// - fully flushed writes and optional deadlines
// - transport timeouts and tls settings
// - restart backoff used by the worker supervisor
//
// Reconnection is not done here; a failed stream ends the engine that owns it.
package session

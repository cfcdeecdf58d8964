// Package engine drives one connection: it frames and parses inbound lines,
// runs the identification handshake, answers keep-alives, hands events to an
// Agent and drains the Agent's queued jobs onto the wire.
//
// An Engine is single-threaded. Everything it owns (state, queue, framer) is
// touched only from the goroutine calling Run.
package engine

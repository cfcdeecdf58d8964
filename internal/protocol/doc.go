// Package protocol owns the IRC line contract: the parsed message model,
// the line parser and the outbound command encoder.
//
// Ownership boundary:
// - message/entity/body sum types
// - inbound line classification (Parse)
// - outbound wire rendering (Encode)
//
// Framing bytes into lines lives in protocol/frame; dialing and stream
// handling live in protocol/session.
package protocol

// Package command defines the control messages exchanged between the netsync
// master and its agents, and their wire representation.
//
// # Commands
//
// Command is a closed, immutable tagged value. There are four kinds:
//
//   - Update: a watched path changed (master -> agent)
//   - Ping: liveness check (master -> agent)
//   - Identify{hostname}: sent once by an agent right after connecting
//   - Custom{data}: free-form payload; agents answer a Ping with Custom{"PONG"}
//
// # Wire Format
//
// Every command travels as one frame:
//
//	+----------------------+---------------------------+
//	| length (uint32, BE)  | CBOR body (length bytes)  |
//	+----------------------+---------------------------+
//
// The body is a CBOR map with small integer keys:
//
//	1: kind      "update" | "ping" | "identify" | "custom"
//	2: hostname  identify only
//	3: data      custom only
//
// The length prefix makes framing independent of how the stream splits or
// coalesces writes. Frames larger than MaxFrameSize are rejected before the
// body is read.
//
// # Errors
//
// Decode never panics. Malformed, truncated, foreign, or trailing data yields
// an error matching ErrDecode. A receiver should drop the frame and keep the
// connection open. ErrFrameTooLarge, in contrast, means the stream can no
// longer be trusted and the connection should be closed.
package command

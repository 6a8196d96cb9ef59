// Package transport provides the stream layer underneath an nxblue socket.
//
// The transport layer handles:
//   - Establishing a bidirectional byte stream (Connector)
//   - Message framing on top of that stream
//   - Accepting inbound TCP connections on the device side
//   - Dialing outbound TCP connections on the controller side
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Commands (OP;p1;p2)          │
//	├────────────────────────────────┤
//	│   Message framing              │
//	│   (LF line or 2-byte UTF)      │
//	├────────────────────────────────┤
//	│   Stream (TCP, pipe, ...)      │
//	└────────────────────────────────┘
//
// # Framing
//
// FramingLine terminates every message with LF. A CR before the LF is
// stripped on read, so CRLF peers interoperate. Messages must not contain
// LF; the command codec escapes it.
//
// FramingUTF prefixes every message with its length as a 2-byte big-endian
// unsigned integer, followed by the message in modified UTF-8. This is the
// layout produced by java.io.DataOutputStream.writeUTF, which leJOS
// firmware uses on the brick side.
//
// Neither framing has acknowledgements, retransmission or keep-alive. A
// broken stream is detected only when a read or write fails.
package transport

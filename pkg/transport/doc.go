// Package transport provides the Zik control-channel transport layer.
//
// The transport layer handles:
//   - Length-prefixed message framing over an RFCOMM byte stream
//   - The session-open handshake
//   - Session state management (Connecting/Ready/Draining/Closed)
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  Request / Answer / Notify     │
//	├────────────────────────────────┤
//	│  Frame: len(2B BE) + type(1B)  │
//	├────────────────────────────────┤
//	│  RFCOMM (already paired)       │
//	└────────────────────────────────┘
//
// The 2-byte big-endian length counts the whole frame including the
// 3-byte header. Packet type 0x00 carries the handshake and its ack,
// 0x80 carries data.
//
// The transport consumes an already-open io.ReadWriteCloser; Bluetooth
// pairing and socket construction are the caller's concern (see
// pkg/bluez for the Linux implementation). A Session never reconnects
// on its own: when the stream dies it drains, reports ErrTransportLost,
// and closes. Reconnection policy belongs to the owner (pkg/connection
// provides backoff helpers).
package transport

// Package wsmux implements vibetunneld's WebSocket multiplexer (§4.J): a
// single /ws endpoint where a client subscribes to any number of sessions
// and streams, receiving binary data frames and sending JSON control
// messages, with per-subscriber backpressure and snapshot coalescing.
package wsmux

import "encoding/binary"

// Kind identifies a binary data frame's payload kind.
type Kind byte

const (
	KindOutput     Kind = 1
	KindSnapshotVT Kind = 2
	KindEvent      Kind = 3
	KindError      Kind = 4
	KindPong       Kind = 5
)

// EncodeFrame lays out a binary data frame per §4.J:
//
//	u8    kind
//	u32   sessionIdLen (LE)
//	bytes sessionId
//	u32   payloadLen (LE)
//	bytes payload
func EncodeFrame(kind Kind, sessionID string, payload []byte) []byte {
	out := make([]byte, 1+4+len(sessionID)+4+len(payload))
	out[0] = byte(kind)
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(sessionID)))
	n := 5
	n += copy(out[n:], sessionID)
	binary.LittleEndian.PutUint32(out[n:n+4], uint32(len(payload)))
	n += 4
	copy(out[n:], payload)
	return out
}

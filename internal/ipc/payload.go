package ipc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// EncodeResize formats a RESIZE payload as ASCII "COLSxROWS".
func EncodeResize(cols, rows int) []byte {
	return []byte(fmt.Sprintf("%dx%d", cols, rows))
}

// DecodeResize parses a RESIZE payload of the form "COLSxROWS".
func DecodeResize(payload []byte) (cols, rows int, err error) {
	parts := strings.SplitN(string(payload), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ipc: malformed resize payload %q", payload)
	}
	cols, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("ipc: malformed resize cols: %w", err)
	}
	rows, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("ipc: malformed resize rows: %w", err)
	}
	return cols, rows, nil
}

// DefaultKillSignal is SIGTERM, used when a KILL frame carries no payload.
const DefaultKillSignal = 15

// DecodeKillSignal returns the signal number carried by a KILL payload, or
// DefaultKillSignal if the payload is empty.
func DecodeKillSignal(payload []byte) (int, error) {
	if len(payload) == 0 {
		return DefaultKillSignal, nil
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("ipc: malformed kill payload length %d", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}

// EncodeKillSignal formats a KILL payload carrying an explicit signal number.
func EncodeKillSignal(sig int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(sig))
	return b
}

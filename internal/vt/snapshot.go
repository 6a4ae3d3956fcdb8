package vt

import (
	"encoding/binary"
	"fmt"
)

// Snapshot encoding constants for SNAPSHOT_VT v1 (§4.H).
const (
	magic      = 0x5654 // 'V','T'
	version    = 1
	headerSize = 32

	rowRunEmpty    = 0xFE
	rowRunExplicit = 0xFD

	maxEmptyRun = 255
)

// Cell type-byte bit layout.
const (
	bitExtended       = 1 << 7
	bitIsUnicode      = 1 << 6
	bitHasForeground  = 1 << 5
	bitHasBackground  = 1 << 4
	bitForegroundRGB  = 1 << 3
	bitBackgroundRGB  = 1 << 2
	charKindMask      = 0x03
	charKindSpace     = 0
	charKindASCII     = 1
	charKindUnicode   = 2
	charKindContinue  = 3
)

// Attribute byte bits, present only when bitExtended is set. The distilled
// format reserves bit7 for "extended data" without specifying its content;
// bold/italic/underline/inverse need somewhere to live, so this repo defines
// the extended byte as exactly those four flags (documented as an Open
// Question resolution).
const (
	attrBold = 1 << iota
	attrItalic
	attrUnderline
	attrInverse
)

// Snapshot renders the emulator's current state as a SNAPSHOT_VT v1 payload.
// It is a pure function of state (§4.H).
func (e *Emulator) Snapshot() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeLocked()
}

func (e *Emulator) encodeLocked() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], magic)
	buf[2] = version
	buf[3] = 0 // flags
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.cols))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.rows))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(e.viewportY()))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(e.cursorX))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.cursorY))
	// buf[24:32] reserved, left zero.

	i := 0
	for i < len(e.grid) {
		if e.grid[i].isEmpty() {
			run := 1
			for i+run < len(e.grid) && run < maxEmptyRun && e.grid[i+run].isEmpty() {
				run++
			}
			buf = append(buf, rowRunEmpty, byte(run))
			i += run
			continue
		}
		buf = append(buf, rowRunExplicit)
		cellCountPos := len(buf)
		buf = append(buf, 0, 0)
		buf = encodeRow(buf, e.grid[i])
		cellCount := uint16(len(e.grid[i]))
		binary.LittleEndian.PutUint16(buf[cellCountPos:cellCountPos+2], cellCount)
		i++
	}
	return buf
}

// viewportY is always 0: this emulator does not implement client-driven
// scrollback viewing (not a named §4.H operation), only scrollback capture.
func (e *Emulator) viewportY() int { return 0 }

func encodeRow(buf []byte, row Row) []byte {
	for _, cell := range row {
		buf = encodeCell(buf, cell)
	}
	return buf
}

func encodeCell(buf []byte, cell Cell) []byte {
	var typeByte byte
	hasExtended := cell.Bold || cell.Italic || cell.Underline || cell.Inverse
	if hasExtended {
		typeByte |= bitExtended
	}

	switch cell.Kind {
	case CharSpace:
		typeByte |= charKindSpace
	case CharASCII:
		typeByte |= charKindASCII
	case CharUnicode:
		typeByte |= charKindUnicode | bitIsUnicode
	case CharContinuation:
		typeByte |= charKindContinue
	}

	if cell.FG.Kind != ColorNone {
		typeByte |= bitHasForeground
		if cell.FG.Kind == ColorRGB {
			typeByte |= bitForegroundRGB
		}
	}
	if cell.BG.Kind != ColorNone {
		typeByte |= bitHasBackground
		if cell.BG.Kind == ColorRGB {
			typeByte |= bitBackgroundRGB
		}
	}

	buf = append(buf, typeByte)

	if hasExtended {
		var a byte
		if cell.Bold {
			a |= attrBold
		}
		if cell.Italic {
			a |= attrItalic
		}
		if cell.Underline {
			a |= attrUnderline
		}
		if cell.Inverse {
			a |= attrInverse
		}
		buf = append(buf, a)
	}

	switch cell.Kind {
	case CharASCII:
		buf = append(buf, byte(cell.R))
	case CharUnicode:
		encoded := []byte(string(cell.R))
		var varintBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(varintBuf[:], uint64(len(encoded)))
		buf = append(buf, varintBuf[:n]...)
		buf = append(buf, encoded...)
	}

	if cell.FG.Kind == ColorPalette {
		buf = append(buf, cell.FG.Palette)
	} else if cell.FG.Kind == ColorRGB {
		buf = append(buf, cell.FG.R, cell.FG.G, cell.FG.B)
	}
	if cell.BG.Kind == ColorPalette {
		buf = append(buf, cell.BG.Palette)
	} else if cell.BG.Kind == ColorRGB {
		buf = append(buf, cell.BG.R, cell.BG.G, cell.BG.B)
	}

	return buf
}

// DecodedSnapshot is the parsed form of a SNAPSHOT_VT payload, independent
// of any live Emulator — used by tests and by clients that just want to
// render a received frame.
type DecodedSnapshot struct {
	Cols, Rows, ViewportY, CursorX, CursorY int
	Grid                                    []Row
}

// DecodeSnapshot parses a SNAPSHOT_VT v1 payload.
func DecodeSnapshot(data []byte) (*DecodedSnapshot, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("vt: snapshot too short: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint16(data[0:2]) != magic {
		return nil, fmt.Errorf("vt: bad magic")
	}
	if data[2] != version {
		return nil, fmt.Errorf("vt: unsupported version %d", data[2])
	}
	d := &DecodedSnapshot{
		Cols:      int(binary.LittleEndian.Uint32(data[4:8])),
		Rows:      int(binary.LittleEndian.Uint32(data[8:12])),
		ViewportY: int(binary.LittleEndian.Uint32(data[12:16])),
		CursorX:   int(binary.LittleEndian.Uint32(data[16:20])),
		CursorY:   int(binary.LittleEndian.Uint32(data[20:24])),
	}

	body := data[headerSize:]
	rowsSeen := 0
	for rowsSeen < d.Rows {
		if len(body) == 0 {
			return nil, fmt.Errorf("vt: truncated snapshot body")
		}
		switch body[0] {
		case rowRunEmpty:
			if len(body) < 2 {
				return nil, fmt.Errorf("vt: truncated empty-run record")
			}
			count := int(body[1])
			for i := 0; i < count; i++ {
				d.Grid = append(d.Grid, newRow(d.Cols))
			}
			rowsSeen += count
			body = body[2:]
		case rowRunExplicit:
			if len(body) < 3 {
				return nil, fmt.Errorf("vt: truncated row header")
			}
			cellCount := int(binary.LittleEndian.Uint16(body[1:3]))
			body = body[3:]
			row := make(Row, 0, cellCount)
			for c := 0; c < cellCount; c++ {
				cell, rest, err := decodeCell(body)
				if err != nil {
					return nil, err
				}
				row = append(row, cell)
				body = rest
			}
			d.Grid = append(d.Grid, row)
			rowsSeen++
		default:
			return nil, fmt.Errorf("vt: unknown row record tag 0x%02x", body[0])
		}
	}
	return d, nil
}

func decodeCell(buf []byte) (Cell, []byte, error) {
	if len(buf) == 0 {
		return Cell{}, nil, fmt.Errorf("vt: truncated cell")
	}
	typeByte := buf[0]
	buf = buf[1:]

	var cell Cell
	hasExtended := typeByte&bitExtended != 0
	if hasExtended {
		if len(buf) == 0 {
			return Cell{}, nil, fmt.Errorf("vt: truncated extended attribute byte")
		}
		a := buf[0]
		buf = buf[1:]
		cell.Bold = a&attrBold != 0
		cell.Italic = a&attrItalic != 0
		cell.Underline = a&attrUnderline != 0
		cell.Inverse = a&attrInverse != 0
	}

	switch typeByte & charKindMask {
	case charKindSpace:
		cell.Kind = CharSpace
	case charKindASCII:
		if len(buf) == 0 {
			return Cell{}, nil, fmt.Errorf("vt: truncated ascii char")
		}
		cell.Kind = CharASCII
		cell.R = rune(buf[0])
		buf = buf[1:]
	case charKindUnicode:
		n, size := binary.Uvarint(buf)
		if size <= 0 {
			return Cell{}, nil, fmt.Errorf("vt: bad unicode length varint")
		}
		buf = buf[size:]
		if uint64(len(buf)) < n {
			return Cell{}, nil, fmt.Errorf("vt: truncated unicode char bytes")
		}
		runes := []rune(string(buf[:n]))
		if len(runes) > 0 {
			cell.R = runes[0]
		}
		cell.Kind = CharUnicode
		buf = buf[n:]
	case charKindContinue:
		cell.Kind = CharContinuation
	}

	if typeByte&bitHasForeground != 0 {
		if typeByte&bitForegroundRGB != 0 {
			if len(buf) < 3 {
				return Cell{}, nil, fmt.Errorf("vt: truncated fg rgb")
			}
			cell.FG = Color{Kind: ColorRGB, R: buf[0], G: buf[1], B: buf[2]}
			buf = buf[3:]
		} else {
			if len(buf) < 1 {
				return Cell{}, nil, fmt.Errorf("vt: truncated fg palette")
			}
			cell.FG = Color{Kind: ColorPalette, Palette: buf[0]}
			buf = buf[1:]
		}
	}
	if typeByte&bitHasBackground != 0 {
		if typeByte&bitBackgroundRGB != 0 {
			if len(buf) < 3 {
				return Cell{}, nil, fmt.Errorf("vt: truncated bg rgb")
			}
			cell.BG = Color{Kind: ColorRGB, R: buf[0], G: buf[1], B: buf[2]}
			buf = buf[3:]
		} else {
			if len(buf) < 1 {
				return Cell{}, nil, fmt.Errorf("vt: truncated bg palette")
			}
			cell.BG = Color{Kind: ColorPalette, Palette: buf[0]}
			buf = buf[1:]
		}
	}

	return cell, buf, nil
}

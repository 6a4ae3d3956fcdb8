// Package vt is vibetunneld's terminal snapshot engine (§4.H): a minimal VT
// emulator fed by the stdout tailer that tracks just enough state — grid,
// cursor, scrollback — to answer snapshot() and text() without attempting a
// full terminfo-grade emulation.
package vt

import (
	"sync"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const defaultScrollbackLimit = 2000

// parserState is the ANSI/VT100 escape-sequence parser's state.
type parserState int

const (
	stGround parserState = iota
	stEscape
	stCSI
	stOSC
	stOSCEscape
)

// Emulator is a minimal terminal state machine. OnBytes, OnResize, Reset,
// Snapshot and Text each hold mu, so the tailer can feed it while other
// goroutines take snapshots or text.
type Emulator struct {
	mu sync.Mutex

	cols, rows      int
	grid            []Row
	scrollback      []Row
	scrollbackLimit int

	cursorX, cursorY int
	cursorVisible    bool

	pen Cell // template for the next printed cell's attributes

	pstate parserState
	params []int
	cur    int
	hasArg bool
	priv   bool
	oscBuf []byte
}

// New creates an emulator sized cols x rows.
func New(cols, rows int) *Emulator {
	e := &Emulator{
		cols:            cols,
		rows:            rows,
		scrollbackLimit: defaultScrollbackLimit,
		cursorVisible:   true,
	}
	e.grid = make([]Row, rows)
	for i := range e.grid {
		e.grid[i] = newRow(cols)
	}
	return e
}

// OnBytes feeds new PTY output into the emulator, per §4.H.
func (e *Emulator) OnBytes(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := 0
	for i < len(data) {
		b := data[i]
		i++
		switch e.pstate {
		case stGround:
			e.groundByte(b, data, &i)
		case stEscape:
			e.escapeByte(b)
		case stCSI:
			e.csiByte(b)
		case stOSC:
			e.oscByte(b)
		case stOSCEscape:
			if b == '\\' {
				e.pstate = stGround
			} else {
				e.pstate = stOSC
			}
		}
	}
}

func (e *Emulator) groundByte(b byte, data []byte, i *int) {
	switch b {
	case 0x1b:
		e.pstate = stEscape
	case '\r':
		e.cursorX = 0
	case '\n':
		e.lineFeed()
	case '\b':
		if e.cursorX > 0 {
			e.cursorX--
		}
	case '\t':
		e.cursorX = ((e.cursorX / 8) + 1) * 8
		if e.cursorX >= e.cols {
			e.cursorX = e.cols - 1
		}
	default:
		if b < 0x20 {
			return // ignore other C0 controls
		}
		r, size := decodeUTF8At(data, *i-1)
		*i += size - 1
		e.putRune(r)
	}
}

func (e *Emulator) escapeByte(b byte) {
	switch b {
	case '[':
		e.pstate = stCSI
		e.params = e.params[:0]
		e.cur = 0
		e.hasArg = false
		e.priv = false
	case ']':
		e.pstate = stOSC
		e.oscBuf = e.oscBuf[:0]
	default:
		// Other escape kinds (charset select, DEC save/restore, etc.) are
		// not modeled; return to ground without acting on them.
		e.pstate = stGround
	}
}

func (e *Emulator) oscByte(b byte) {
	switch b {
	case 0x07:
		e.pstate = stGround
	case 0x1b:
		e.pstate = stOSCEscape
	default:
		e.oscBuf = append(e.oscBuf, b)
	}
}

func (e *Emulator) csiByte(b byte) {
	switch {
	case b == '?' && len(e.params) == 0 && !e.hasArg:
		e.priv = true
	case b >= '0' && b <= '9':
		e.cur = e.cur*10 + int(b-'0')
		e.hasArg = true
	case b == ';':
		e.params = append(e.params, e.cur)
		e.cur = 0
		e.hasArg = false
	case b >= 0x40 && b <= 0x7e:
		if e.hasArg || len(e.params) == 0 {
			e.params = append(e.params, e.cur)
		}
		e.dispatchCSI(b, e.params)
		e.pstate = stGround
	default:
		// intermediate bytes (0x20-0x2f) ignored
	}
}

func (e *Emulator) arg(params []int, idx, def int) int {
	if idx >= len(params) || params[idx] == 0 {
		return def
	}
	return params[idx]
}

func (e *Emulator) dispatchCSI(final byte, params []int) {
	switch final {
	case 'A':
		e.cursorY = clamp(e.cursorY-e.arg(params, 0, 1), 0, e.rows-1)
	case 'B':
		e.cursorY = clamp(e.cursorY+e.arg(params, 0, 1), 0, e.rows-1)
	case 'C':
		e.cursorX = clamp(e.cursorX+e.arg(params, 0, 1), 0, e.cols-1)
	case 'D':
		e.cursorX = clamp(e.cursorX-e.arg(params, 0, 1), 0, e.cols-1)
	case 'E':
		e.cursorY = clamp(e.cursorY+e.arg(params, 0, 1), 0, e.rows-1)
		e.cursorX = 0
	case 'F':
		e.cursorY = clamp(e.cursorY-e.arg(params, 0, 1), 0, e.rows-1)
		e.cursorX = 0
	case 'G':
		e.cursorX = clamp(e.arg(params, 0, 1)-1, 0, e.cols-1)
	case 'H', 'f':
		e.cursorY = clamp(e.arg(params, 0, 1)-1, 0, e.rows-1)
		e.cursorX = clamp(e.arg(params, 1, 1)-1, 0, e.cols-1)
	case 'J':
		e.eraseDisplay(e.arg(params, 0, 0))
	case 'K':
		e.eraseLine(e.arg(params, 0, 0))
	case 'm':
		e.applySGR(params)
	case 'h':
		if e.priv && len(params) > 0 && params[0] == 25 {
			e.cursorVisible = true
		}
	case 'l':
		if e.priv && len(params) > 0 && params[0] == 25 {
			e.cursorVisible = false
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *Emulator) eraseDisplay(mode int) {
	switch mode {
	case 0:
		e.eraseLine(0)
		for y := e.cursorY + 1; y < e.rows; y++ {
			e.grid[y] = newRow(e.cols)
		}
	case 1:
		e.eraseLine(1)
		for y := 0; y < e.cursorY; y++ {
			e.grid[y] = newRow(e.cols)
		}
	default:
		for y := 0; y < e.rows; y++ {
			e.grid[y] = newRow(e.cols)
		}
	}
}

func (e *Emulator) eraseLine(mode int) {
	row := e.grid[e.cursorY]
	switch mode {
	case 0:
		for x := e.cursorX; x < e.cols; x++ {
			row[x] = blankCell
		}
	case 1:
		for x := 0; x <= e.cursorX && x < e.cols; x++ {
			row[x] = blankCell
		}
	default:
		for x := 0; x < e.cols; x++ {
			row[x] = blankCell
		}
	}
}

func (e *Emulator) applySGR(params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			e.pen = Cell{}
		case p == 1:
			e.pen.Bold = true
		case p == 3:
			e.pen.Italic = true
		case p == 4:
			e.pen.Underline = true
		case p == 7:
			e.pen.Inverse = true
		case p == 22:
			e.pen.Bold = false
		case p == 23:
			e.pen.Italic = false
		case p == 24:
			e.pen.Underline = false
		case p == 27:
			e.pen.Inverse = false
		case p >= 30 && p <= 37:
			e.pen.FG = Color{Kind: ColorPalette, Palette: uint8(p - 30)}
		case p == 38:
			n := e.parseExtendedColor(params, &i)
			e.pen.FG = n
		case p == 39:
			e.pen.FG = Color{}
		case p >= 40 && p <= 47:
			e.pen.BG = Color{Kind: ColorPalette, Palette: uint8(p - 40)}
		case p == 48:
			n := e.parseExtendedColor(params, &i)
			e.pen.BG = n
		case p == 49:
			e.pen.BG = Color{}
		case p >= 90 && p <= 97:
			e.pen.FG = Color{Kind: ColorPalette, Palette: uint8(p - 90 + 8)}
		case p >= 100 && p <= 107:
			e.pen.BG = Color{Kind: ColorPalette, Palette: uint8(p - 100 + 8)}
		}
	}
}

// parseExtendedColor consumes the 38/48 ";5;N" or ";2;r;g;b" subsequence
// starting at params[*i+1], advancing *i past what it consumes.
func (e *Emulator) parseExtendedColor(params []int, i *int) Color {
	if *i+1 >= len(params) {
		return Color{}
	}
	mode := params[*i+1]
	switch mode {
	case 5:
		if *i+2 < len(params) {
			*i += 2
			return Color{Kind: ColorPalette, Palette: uint8(params[*i])}
		}
	case 2:
		if *i+4 < len(params) {
			r, g, b := params[*i+2], params[*i+3], params[*i+4]
			*i += 4
			return Color{Kind: ColorRGB, R: uint8(r), G: uint8(g), B: uint8(b)}
		}
	}
	return Color{}
}

// putRune writes one printable rune at the cursor, advancing it and
// wrapping/scrolling as needed, including the continuation-cell rule for
// wide (East-Asian double-width) runes.
func (e *Emulator) putRune(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		w = 1
	}
	if e.cursorX+w > e.cols {
		e.cursorX = 0
		e.lineFeed()
	}

	cell := e.pen
	if r <= 0x7f {
		cell.Kind = CharASCII
	} else {
		cell.Kind = CharUnicode
	}
	cell.R = r
	e.grid[e.cursorY][e.cursorX] = cell
	e.cursorX++

	if w == 2 && e.cursorX < e.cols {
		e.grid[e.cursorY][e.cursorX] = Cell{Kind: CharContinuation}
		e.cursorX++
	}
}

// lineFeed advances to the next row, scrolling the grid into scrollback
// when already at the bottom.
func (e *Emulator) lineFeed() {
	if e.cursorY < e.rows-1 {
		e.cursorY++
		return
	}
	e.scrollback = append(e.scrollback, e.grid[0])
	if len(e.scrollback) > e.scrollbackLimit {
		e.scrollback = e.scrollback[len(e.scrollback)-e.scrollbackLimit:]
	}
	copy(e.grid, e.grid[1:])
	e.grid[e.rows-1] = newRow(e.cols)
}

// Reset clears the grid, scrollback, and cursor back to a fresh terminal of
// the same size, used when the tailer's lastClearOffset advances.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grid = make([]Row, e.rows)
	for i := range e.grid {
		e.grid[i] = newRow(e.cols)
	}
	e.scrollback = nil
	e.cursorX, e.cursorY = 0, 0
	e.cursorVisible = true
	e.pen = Cell{}
	e.pstate = stGround
}

// OnResize reflows minimally per §4.H: preserve the cursor relative to the
// bottom, clear newly uncovered rows on grow, clip rows on shrink.
func (e *Emulator) OnResize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cols == e.cols && rows == e.rows {
		return
	}

	fromBottom := e.rows - 1 - e.cursorY

	newGrid := make([]Row, rows)
	for y := range newGrid {
		newGrid[y] = newRow(cols)
	}
	copyRows := minInt(rows, e.rows)
	for y := 0; y < copyRows; y++ {
		copyCols := minInt(cols, e.cols)
		copy(newGrid[y], e.grid[y][:copyCols])
	}

	e.grid = newGrid
	e.cols, e.rows = cols, rows
	e.cursorY = clamp(rows-1-fromBottom, 0, rows-1)
	e.cursorX = clamp(e.cursorX, 0, cols-1)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// decodeUTF8At decodes one rune starting at data[i], falling back to a
// single byte for invalid or truncated sequences so malformed input never
// stalls the parser. No partial rune is kept across OnBytes calls: a
// multibyte sequence split between two calls is not reassembled, and each of
// its bytes is written to a cell of its own.
func decodeUTF8At(data []byte, i int) (rune, int) {
	r, size := utf8.DecodeRune(data[i:])
	if r == utf8.RuneError && size <= 1 {
		return rune(data[i]), 1
	}
	return r, size
}

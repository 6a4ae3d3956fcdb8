package vt

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestSnapshotRoundTripASCII(t *testing.T) {
	e := New(10, 3)
	e.OnBytes([]byte("hello\r\nworld"))

	data := e.Snapshot()
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if decoded.Cols != 10 || decoded.Rows != 3 {
		t.Fatalf("dims = %dx%d", decoded.Cols, decoded.Rows)
	}
	if decoded.CursorX != e.cursorX || decoded.CursorY != e.cursorY {
		t.Fatalf("cursor mismatch: got (%d,%d), want (%d,%d)", decoded.CursorX, decoded.CursorY, e.cursorX, e.cursorY)
	}
	if decoded.ViewportY != 0 {
		t.Fatalf("viewportY = %d, want 0", decoded.ViewportY)
	}

	got := rowText(decoded.Grid[0])
	if got != "hello" {
		t.Fatalf("row 0 = %q, want %q", got, "hello")
	}
	got = rowText(decoded.Grid[1])
	if got != "world" {
		t.Fatalf("row 1 = %q, want %q", got, "world")
	}
}

func TestSnapshotEmptyRowRunLength(t *testing.T) {
	e := New(5, 300)
	data := e.Snapshot()
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(decoded.Grid) != 300 {
		t.Fatalf("got %d rows, want 300", len(decoded.Grid))
	}
	for i, row := range decoded.Grid {
		if !row.isEmpty() {
			t.Fatalf("row %d not empty", i)
		}
	}
}

func TestSnapshotColorsAndAttributes(t *testing.T) {
	e := New(20, 1)
	e.OnBytes([]byte("\x1b[1;4;38;5;200;48;2;10;20;30mX\x1b[0mY"))

	data := e.Snapshot()
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	cellX := decoded.Grid[0][0]
	if !cellX.Bold || !cellX.Underline {
		t.Fatalf("expected bold+underline, got %+v", cellX)
	}
	if cellX.FG.Kind != ColorPalette || cellX.FG.Palette != 200 {
		t.Fatalf("fg = %+v", cellX.FG)
	}
	if cellX.BG.Kind != ColorRGB || cellX.BG.R != 10 || cellX.BG.G != 20 || cellX.BG.B != 30 {
		t.Fatalf("bg = %+v", cellX.BG)
	}

	cellY := decoded.Grid[0][1]
	if cellY.Bold || cellY.FG.Kind != ColorNone {
		t.Fatalf("expected reset attributes at Y, got %+v", cellY)
	}
}

func TestSnapshotWideCharContinuation(t *testing.T) {
	e := New(10, 1)
	e.OnBytes([]byte("中文")) // two double-width CJK characters

	data := e.Snapshot()
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	row := decoded.Grid[0]
	if row[0].Kind != CharUnicode || row[0].R != '中' {
		t.Fatalf("cell 0 = %+v", row[0])
	}
	if row[1].Kind != CharContinuation {
		t.Fatalf("cell 1 = %+v, want continuation", row[1])
	}
	if row[2].Kind != CharUnicode || row[2].R != '文' {
		t.Fatalf("cell 2 = %+v", row[2])
	}
	if row[3].Kind != CharContinuation {
		t.Fatalf("cell 3 = %+v, want continuation", row[3])
	}
}

func TestSnapshotFuzzRandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	palette := []rune{'a', 'b', '中', ' ', 'Z'}

	for iter := 0; iter < 50; iter++ {
		cols := 1 + rng.Intn(30)
		rows := 1 + rng.Intn(10)
		e := New(cols, rows)

		var sb bytes.Buffer
		for i := 0; i < 40; i++ {
			r := palette[rng.Intn(len(palette))]
			sb.WriteRune(r)
			if rng.Intn(5) == 0 {
				sb.WriteString("\r\n")
			}
		}
		e.OnBytes(sb.Bytes())

		data := e.Snapshot()
		decoded, err := DecodeSnapshot(data)
		if err != nil {
			t.Fatalf("iter %d: DecodeSnapshot: %v", iter, err)
		}
		if decoded.Cols != cols || decoded.Rows != rows {
			t.Fatalf("iter %d: dims mismatch", iter)
		}

		reEncoded := (&Emulator{cols: cols, rows: rows, grid: decoded.Grid}).encodeLocked()
		redecoded, err := DecodeSnapshot(reEncoded)
		if err != nil {
			t.Fatalf("iter %d: re-decode: %v", iter, err)
		}
		for y := range decoded.Grid {
			for x := range decoded.Grid[y] {
				a, b := decoded.Grid[y][x], redecoded.Grid[y][x]
				if a != b {
					t.Fatalf("iter %d: cell (%d,%d) not stable across re-encode: %+v vs %+v", iter, x, y, a, b)
				}
			}
		}
	}
}

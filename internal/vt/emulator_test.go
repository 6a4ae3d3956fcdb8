package vt

import (
	"testing"
	"time"
)

func TestCursorPositioning(t *testing.T) {
	e := New(20, 5)
	e.OnBytes([]byte("\x1b[3;4Hx"))
	// CUP is 1-indexed; row 3, col 4 lands the write at the 0-indexed cell
	// (3, 2), and the cursor then advances one column from there.
	if e.cursorY != 2 || e.cursorX != 4 {
		t.Fatalf("cursor = (%d,%d), want (4,2)", e.cursorX, e.cursorY)
	}
	if e.grid[2][3].R != 'x' {
		t.Fatalf("expected 'x' written at row 2 col 3, got %+v", e.grid[2][3])
	}
}

func TestEraseDisplayFull(t *testing.T) {
	e := New(5, 2)
	e.OnBytes([]byte("hello\r\nworld"))
	e.OnBytes([]byte("\x1b[2J"))
	for y := 0; y < 2; y++ {
		if !e.grid[y].isEmpty() {
			t.Fatalf("row %d not cleared", y)
		}
	}
}

func TestLineWrapAndScroll(t *testing.T) {
	e := New(3, 2)
	e.OnBytes([]byte("abcdef")) // "abc" fills row 0, wraps; "def" fills row1
	if rowText(e.grid[0]) != "abc" {
		t.Fatalf("row0 = %q", rowText(e.grid[0]))
	}
	if rowText(e.grid[1]) != "def" {
		t.Fatalf("row1 = %q", rowText(e.grid[1]))
	}

	e.OnBytes([]byte("ghi")) // forces a scroll: row0 evicted to scrollback
	if len(e.scrollback) != 1 {
		t.Fatalf("expected 1 scrollback row, got %d", len(e.scrollback))
	}
	if rowText(e.scrollback[0]) != "abc" {
		t.Fatalf("scrollback[0] = %q, want %q", rowText(e.scrollback[0]), "abc")
	}
	if rowText(e.grid[0]) != "def" || rowText(e.grid[1]) != "ghi" {
		t.Fatalf("grid after scroll = %q / %q", rowText(e.grid[0]), rowText(e.grid[1]))
	}
}

func TestCursorVisibilityToggle(t *testing.T) {
	e := New(10, 2)
	if !e.cursorVisible {
		t.Fatal("expected cursor visible by default")
	}
	e.OnBytes([]byte("\x1b[?25l"))
	if e.cursorVisible {
		t.Fatal("expected cursor hidden after DECTCEM reset")
	}
	e.OnBytes([]byte("\x1b[?25h"))
	if !e.cursorVisible {
		t.Fatal("expected cursor visible after DECTCEM set")
	}
}

func TestResizeGrowClearsNewArea(t *testing.T) {
	e := New(5, 2)
	e.OnBytes([]byte("ab"))
	e.OnResize(5, 4)
	if e.rows != 4 || e.cols != 5 {
		t.Fatalf("dims after resize = %dx%d", e.cols, e.rows)
	}
	if rowText(e.grid[0]) != "ab" {
		t.Fatalf("row0 lost content: %q", rowText(e.grid[0]))
	}
	for y := 2; y < 4; y++ {
		if !e.grid[y].isEmpty() {
			t.Fatalf("new row %d not cleared", y)
		}
	}
}

func TestResizeShrinkClipsRows(t *testing.T) {
	e := New(5, 5)
	e.OnBytes([]byte("1\r\n2\r\n3\r\n4\r\n5"))
	e.OnResize(5, 2)
	if e.rows != 2 {
		t.Fatalf("rows after shrink = %d", e.rows)
	}
	if len(e.grid) != 2 {
		t.Fatalf("grid len = %d", len(e.grid))
	}
}

func TestResizePreservesCursorRelativeToBottom(t *testing.T) {
	e := New(5, 5)
	e.cursorY = 4 // bottom row
	e.OnResize(5, 10)
	if e.cursorY != 9 {
		t.Fatalf("cursorY after grow = %d, want 9 (still at bottom)", e.cursorY)
	}
}

func TestTextTrimsTrailingSpaces(t *testing.T) {
	e := New(10, 1)
	e.OnBytes([]byte("hi"))
	if got := e.Text(); got != "hi" {
		t.Fatalf("Text() = %q, want %q", got, "hi")
	}
}

func TestCoalescerDebouncesBurst(t *testing.T) {
	fired := make(chan struct{}, 10)
	c := NewCoalescer(func() { fired <- struct{}{} })
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.MarkDirty()
	}

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a coalesced notify within the deadline")
	}

	select {
	case <-fired:
		t.Fatal("expected only one notify for a single burst")
	case <-time.After(100 * time.Millisecond):
	}
}

// Package ptywrap is the thin cross-platform wrapper around the host's PTY
// facility: open a PTY for a child command, resize it, and read the local
// terminal's own size. It is the thinnest layer over github.com/creack/pty
// that vibetunnel-fwd needs.
package ptywrap

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Size is a terminal's column/row dimensions.
type Size struct {
	Cols int
	Rows int
}

// DefaultSize picks a sensible default when neither an explicit size nor a
// readable local TTY is available: 120x40 when driven from an external TTY,
// else 80x24 (§4.B).
func DefaultSize(fromExternalTTY bool) Size {
	if fromExternalTTY {
		return Size{Cols: 120, Rows: 40}
	}
	return Size{Cols: 80, Rows: 24}
}

// LocalSize reads the current size of the given file descriptor if it's a
// TTY. ok is false if it isn't, or the ioctl failed.
func LocalSize(f *os.File) (size Size, ok bool) {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return Size{}, false
	}
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return Size{}, false
	}
	return Size{Cols: cols, Rows: rows}, true
}

// Start forks cmd under a fresh PTY of the given size and returns the
// master end. The child becomes session leader with the slave as its
// controlling tty, per creack/pty's StartWithSize, and the slave is closed
// in the parent immediately after fork — only the master is retained here.
func Start(cmd *exec.Cmd, size Size) (*os.File, error) {
	return pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(size.Cols),
		Rows: uint16(size.Rows),
	})
}

// SetSize applies a new window size to an open PTY master.
func SetSize(master *os.File, size Size) error {
	return pty.Setsize(master, &pty.Winsize{
		Cols: uint16(size.Cols),
		Rows: uint16(size.Rows),
	})
}

// MakeRaw puts fd into raw mode, returning a restore function. If fd is not
// a terminal, MakeRaw is a no-op and the returned restore function does
// nothing.
func MakeRaw(fd int) (restore func(), err error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(fd, old) }, nil
}

// Package tailer implements the per-session stdout tailer (§4.I): follows a
// session's asciinema recording as it grows, feeding the terminal snapshot
// engine and broadcasting raw output to subscribers.
package tailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/recorder"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/vt"
)

// PollInterval bounds how often the tailer checks for new data, per §5.
const PollInterval = 50 * time.Millisecond

// OutputSink receives raw output bytes as the tailer reads them, in file
// order, for broadcast to "output"-subscribed WS clients.
type OutputSink func(sessionID string, data []byte)

// Tailer follows one session's stdout file.
type Tailer struct {
	controlDir string
	id         string
	reg        *registry.Registry
	emu        *vt.Emulator
	onOutput   OutputSink
	onChange   func(sessionID string)

	file          *os.File
	lr            *recorder.LineReader
	lastClearSeen int64
	headerSeen    bool
	drained       bool // the last pump read every complete line available
}

// New creates a tailer for a session, using emu as its terminal emulator.
func New(controlDir, id string, emu *vt.Emulator, reg *registry.Registry, onOutput OutputSink) *Tailer {
	return &Tailer{controlDir: controlDir, id: id, reg: reg, emu: emu, onOutput: onOutput}
}

// SetOnChange registers a callback fired after every emulator mutation
// (output or resize), used by vibetunneld to drive the snapshot
// coalescer (§4.H/§4.J) independently of the raw-output broadcast.
func (t *Tailer) SetOnChange(f func(sessionID string)) {
	t.onChange = f
}

// Run follows the session's stdout file until ctx is canceled or the
// session has exited and there is nothing left to read.
func (t *Tailer) Run(ctx context.Context) {
	defer t.closeFile()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		exited := t.sessionExited()
		t.pump()
		if exited && t.atEOF() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tailer) sessionExited() bool {
	entry, ok := t.reg.Get(t.id)
	return !ok || entry.Record.Status == session.StatusExited
}

func (t *Tailer) atEOF() bool {
	return t.file == nil || t.lr == nil || t.drained
}

// pump opens the file if needed, reseeks on lastClearOffset advance, and
// drains every complete line currently available.
func (t *Tailer) pump() {
	entry, ok := t.reg.Get(t.id)
	if !ok {
		return
	}
	offset := entry.Record.LastClearOffset

	if t.file == nil {
		if err := t.open(offset); err != nil {
			return
		}
	} else if offset != t.lastClearSeen {
		t.reopen(offset)
	}

	for {
		line, err := t.lr.Next()
		if err != nil {
			t.drained = true
			return
		}
		if !t.headerSeen {
			t.headerSeen = true
			continue // header line already reflected in emu's initial size
		}
		ev, err := recorder.ParseEvent(line)
		if err != nil {
			logger.Warn("tailer: unparseable event line", "id", t.id, "err", err)
			continue
		}
		t.handleEvent(ev)
	}
}

func (t *Tailer) handleEvent(ev recorder.Event) {
	switch ev.Kind {
	case "o":
		data := []byte(ev.Data)
		t.emu.OnBytes(data)
		if t.onOutput != nil {
			t.onOutput(t.id, data)
		}
		if t.onChange != nil {
			t.onChange(t.id)
		}
	case "r":
		cols, rows, err := parseDims(ev.Data)
		if err != nil {
			logger.Warn("tailer: bad resize event", "id", t.id, "err", err)
			return
		}
		t.emu.OnResize(cols, rows)
		if t.onChange != nil {
			t.onChange(t.id)
		}
	case "x":
		t.reg.EmitSessionExit(t.id)
	}
}

func parseDims(s string) (cols, rows int, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("tailer: malformed resize dimensions %q", s)
	}
	cols, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	rows, err = strconv.Atoi(parts[1])
	return cols, rows, err
}

func (t *Tailer) open(offset int64) error {
	f, err := os.Open(session.StdoutPath(t.controlDir, t.id))
	if err != nil {
		return err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return err
		}
	}
	t.file = f
	t.lr = recorder.NewLineReader(f)
	t.lastClearSeen = offset
	t.headerSeen = offset > 0 // a non-zero clear offset starts mid-stream, past the header
	return nil
}

// reopen handles a lastClearOffset advance: reseek and reset the emulator,
// since everything before the new offset is no longer part of the replay.
func (t *Tailer) reopen(offset int64) {
	t.closeFile()
	t.emu.Reset()
	t.open(offset)
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.lr = nil
	}
}

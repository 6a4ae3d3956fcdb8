package tailer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/recorder"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/vt"
)

func TestTailerFeedsEmulatorAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	id := "s1"
	if err := session.Save(dir, &session.Record{ID: id, Status: session.StatusRunning}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := recorder.New(session.StdoutPath(dir, id), 10, 2, "sh", "")
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}
	if err := rec.WriteOutput([]byte("hi")); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}

	reg := registry.New(dir)
	reg.Put(session.Record{ID: id, Status: session.StatusRunning})

	emu := vt.New(10, 2)

	var mu sync.Mutex
	var broadcasts [][]byte
	sink := func(sessionID string, data []byte) {
		mu.Lock()
		broadcasts = append(broadcasts, append([]byte(nil), data...))
		mu.Unlock()
	}

	tl := New(dir, id, emu, reg, sink)
	tl.pump()

	mu.Lock()
	n := len(broadcasts)
	mu.Unlock()
	if n != 1 || string(broadcasts[0]) != "hi" {
		t.Fatalf("broadcasts = %v", broadcasts)
	}
	if emu.Text() != "hi\n" {
		t.Fatalf("emulator text = %q, want %q", emu.Text(), "hi\n")
	}

	if err := rec.WriteResize(20, 5); err != nil {
		t.Fatalf("WriteResize: %v", err)
	}
	tl.pump()

	if err := rec.WriteExit(0, id); err != nil {
		t.Fatalf("WriteExit: %v", err)
	}
	rec.Close()

	var exitFired bool
	reg.OnEvent(func(e registry.Event) {
		if e.Kind == registry.EventSessionExit {
			exitFired = true
		}
	})
	tl.pump()

	if !exitFired {
		t.Fatal("expected SESSION_EXIT to fire on \"x\" event")
	}
}

func TestTailerOnChangeFiresOnOutputAndResize(t *testing.T) {
	dir := t.TempDir()
	id := "s1"
	if err := session.Save(dir, &session.Record{ID: id, Status: session.StatusRunning}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := recorder.New(session.StdoutPath(dir, id), 10, 2, "sh", "")
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}
	if err := rec.WriteOutput([]byte("hi")); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}

	reg := registry.New(dir)
	reg.Put(session.Record{ID: id, Status: session.StatusRunning})

	tl := New(dir, id, vt.New(10, 2), reg, nil)

	var mu sync.Mutex
	var changes int
	tl.SetOnChange(func(sessionID string) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	tl.pump()
	mu.Lock()
	n := changes
	mu.Unlock()
	if n != 1 {
		t.Fatalf("onChange count after output = %d, want 1", n)
	}

	if err := rec.WriteResize(20, 5); err != nil {
		t.Fatalf("WriteResize: %v", err)
	}
	tl.pump()

	mu.Lock()
	n = changes
	mu.Unlock()
	if n != 2 {
		t.Fatalf("onChange count after resize = %d, want 2", n)
	}
}

func TestTailerStopsAfterExitAndEOF(t *testing.T) {
	dir := t.TempDir()
	id := "s1"
	if err := session.Save(dir, &session.Record{ID: id, Status: session.StatusExited}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := recorder.New(session.StdoutPath(dir, id), 10, 2, "sh", "")
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}
	rec.WriteExit(0, id)
	rec.Close()

	reg := registry.New(dir)
	reg.Put(session.Record{ID: id, Status: session.StatusExited})

	tl := New(dir, id, vt.New(10, 2), reg, nil)

	done := make(chan struct{})
	go func() {
		tl.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exited session reached EOF")
	}
}

func TestParseDims(t *testing.T) {
	cols, rows, err := parseDims("100x30")
	if err != nil || cols != 100 || rows != 30 {
		t.Fatalf("got %d,%d,%v", cols, rows, err)
	}
	if _, _, err := parseDims("bogus"); err == nil {
		t.Fatal("expected error for malformed dims")
	}
}

package watcher

import (
	"os"
	"testing"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
)

func writeSession(t *testing.T, controlDir string, rec *session.Record) {
	t.Helper()
	if err := session.Save(controlDir, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestScanEmitsAppearedForNewSession(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(dir)
	w := New(dir, reg)

	writeSession(t, dir, &session.Record{ID: "s1", Status: session.StatusRunning, PID: os.Getpid()})

	w.scan()

	entry, ok := reg.Get("s1")
	if !ok {
		t.Fatal("expected session s1 in registry")
	}
	if entry.Record.Status != session.StatusRunning {
		t.Fatalf("status = %v", entry.Record.Status)
	}
}

func TestScanEmitsRemovedWhenDirDisappears(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(dir)
	w := New(dir, reg)

	writeSession(t, dir, &session.Record{ID: "s1", Status: session.StatusRunning, PID: os.Getpid()})
	w.scan()
	if _, ok := reg.Get("s1"); !ok {
		t.Fatal("expected session present after first scan")
	}

	if err := os.RemoveAll(session.Dir(dir, "s1")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	w.scan()

	if _, ok := reg.Get("s1"); ok {
		t.Fatal("expected session removed after directory disappeared")
	}
}

func TestScanDetectsOrphanWhenStdoutMissing(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(dir)
	w := New(dir, reg)

	// "running" but the stdout recording file was never created — a crash
	// before recorder.New, or a corrupted directory.
	writeSession(t, dir, &session.Record{ID: "s1", Status: session.StatusRunning, PID: os.Getpid()})
	w.scan()

	entry, ok := reg.Get("s1")
	if !ok {
		t.Fatal("expected session present")
	}
	if entry.Record.Status != session.StatusExited {
		t.Fatalf("expected orphan to be marked exited, got %v", entry.Record.Status)
	}
}

func TestScanSkipsUnchangedSession(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(dir)
	w := New(dir, reg)

	rec := &session.Record{ID: "s1", Status: session.StatusRunning, PID: os.Getpid()}
	writeSession(t, dir, rec)
	// Make the session alive (stdout file present) so it isn't orphaned,
	// and capture how many events fire across two identical scans.
	if err := os.WriteFile(session.StdoutPath(dir, "s1"), []byte("{}\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var events int
	reg.OnEvent(func(registry.Event) { events++ })

	w.scan()
	firstCount := events
	time.Sleep(5 * time.Millisecond)
	w.scan()

	if events != firstCount {
		t.Fatalf("expected no new events on unchanged scan, got %d -> %d", firstCount, events)
	}
}

// Package watcher implements the control-directory watcher (§4.F):
// polling-based discovery of session directories, diff-updating the
// registry on every scan. Polling, not inotify/FSEvents, per the spec's
// portability requirement.
package watcher

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
)

// PollInterval bounds scan frequency, per §5 ("dir watcher 500 ms").
const PollInterval = 500 * time.Millisecond

// Watcher scans a control directory and keeps a Registry in sync.
type Watcher struct {
	controlDir string
	reg        *registry.Registry

	known map[string]time.Time // id -> last-seen session.json mtime
}

// New creates a watcher for controlDir, updating reg.
func New(controlDir string, reg *registry.Registry) *Watcher {
	return &Watcher{controlDir: controlDir, reg: reg, known: make(map[string]time.Time)}
}

// Run scans every PollInterval until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	w.scan()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.controlDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("watcher: read control dir failed", "err", err)
		}
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		seen[id] = true

		path := session.Path(w.controlDir, id)
		fi, err := os.Stat(path)
		if err != nil {
			continue // not a session dir yet, or mid-creation
		}

		lastMod, known := w.known[id]
		if known && !fi.ModTime().After(lastMod) {
			continue
		}

		rec, err := session.Load(w.controlDir, id)
		if err != nil {
			logger.Warn("watcher: unparseable session.json, will retry", "id", id, "err", err)
			continue
		}

		if rec.Status == session.StatusRunning {
			detectOrphan(w.controlDir, rec)
		}

		w.known[id] = fi.ModTime()
		w.reg.Put(*rec)
	}

	for id := range w.known {
		if seen[id] {
			continue
		}
		delete(w.known, id)
		w.reg.Remove(id)
	}
}

// detectOrphan marks a session exited in-memory if its recording file is
// missing or its process no longer exists, so a crashed forwarder never
// leaves a zombie "running" entry in the registry (supplemented feature,
// grounded on regenrek-vibetunnel's loadSession orphan check).
func detectOrphan(controlDir string, rec *session.Record) {
	if _, err := os.Stat(session.StdoutPath(controlDir, rec.ID)); os.IsNotExist(err) {
		markOrphan(rec)
		return
	}
	if rec.PID > 0 && !processAlive(rec.PID) {
		markOrphan(rec)
	}
}

func markOrphan(rec *session.Record) {
	code := 1
	rec.Status = session.StatusExited
	rec.ExitCode = &code
}

// processAlive probes liveness via kill(pid, 0), the same defensive check
// regenrek-vibetunnel's Session.IsAlive uses.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

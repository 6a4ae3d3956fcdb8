package forwarder

import (
	"context"
	"os"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/ptywrap"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/titlefilter"
)

// watchLocalSize polls the parent's own TTY size and propagates changes to
// the PTY master, per §4.E step 6 ("poll the local TTY size (every ~200ms)
// and push changes via setSize").
func (fw *forwarder) watchLocalSize(ctx context.Context) {
	if fw.opts.MonitorOnly {
		return
	}
	ticker := time.NewTicker(sizePollInterval)
	defer ticker.Stop()

	last, ok := ptywrap.LocalSize(os.Stdout)
	if !ok {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		size, ok := ptywrap.LocalSize(os.Stdout)
		if !ok || size == last {
			continue
		}
		last = size
		if err := fw.applyResize(size.Cols, size.Rows); err != nil {
			logger.Warn("forwarder: local resize propagation failed", "id", fw.id, "err", err)
		}
	}
}

// watchSessionName polls session.json's mtime for out-of-band name changes
// (e.g. a concurrent `vibetunnel-fwd --update-title` invocation) and
// re-emits the static title sequence when one is detected.
func (fw *forwarder) watchSessionName(ctx context.Context) {
	if fw.opts.TitleMode.Normalize() != titlefilter.ModeStatic {
		return
	}
	ticker := time.NewTicker(mtimePollInterval)
	defer ticker.Stop()

	path := session.Path(fw.opts.ControlDir, fw.id)
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		fi, err := os.Stat(path)
		if err != nil || !fi.ModTime().After(lastMod) {
			continue
		}
		lastMod = fi.ModTime()

		rec, err := session.Load(fw.opts.ControlDir, fw.id)
		if err != nil {
			logger.Warn("forwarder: reload session.json failed", "id", fw.id, "err", err)
			continue
		}

		fw.recMu.Lock()
		changed := rec.Name != fw.lastName
		if changed {
			fw.lastName = rec.Name
		}
		fw.recMu.Unlock()

		if changed {
			fw.maybeReemitTitle(rec.Name)
		}
	}
}

// maybeReemitTitle injects the forwarder-owned title sequence into the
// output stream when running in static mode, per §4.D.
func (fw *forwarder) maybeReemitTitle(name string) {
	if fw.opts.TitleMode.Normalize() != titlefilter.ModeStatic {
		return
	}
	fw.writeFilteredChunk(titlefilter.EmitTitle(name))
}

// Command vibetunneld is the central server (§4.F-§4.K): it watches a
// control directory for sessions forwarded by vibetunnel-fwd, maintains an
// in-memory registry and a per-session terminal emulator, and serves both a
// multiplexed WebSocket and a thin REST surface over them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetunnel/vibetunnel-go/internal/config"
	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/restapi"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/tailer"
	"github.com/vibetunnel/vibetunnel-go/internal/vt"
	"github.com/vibetunnel/vibetunnel-go/internal/watcher"
	"github.com/vibetunnel/vibetunnel-go/internal/wsmux"
)

const defaultCols, defaultRows = 80, 24

// shutdownDrain bounds the grace period for in-flight writes on shutdown
// (§5: "drain outstanding writes with a short deadline (≤ 2 s)").
const shutdownDrain = 2 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr         string
		controlDir   string
		logFile      string
		verbosity    string
		forwarderBin string
		quietCount   int
		verboseCount int
	)

	cmd := &cobra.Command{
		Use:                   "vibetunneld [flags]",
		Short:                 "Run the vibetunnel central server",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(c *cobra.Command, args []string) error {
			fo, _ := config.LoadFileOverrides(defaultOverridesPath())
			cfg, err := (config.Resolve{
				FlagControlDir: controlDir,
				FlagLogFile:    logFile,
				FlagLogLevel:   verbosity,
				FileOverrides:  fo,
			}).Build()
			if err != nil {
				return err
			}

			level := logger.ParseVerbosity(cfg.LogLevel)
			if verbosity == "" && (quietCount != 0 || verboseCount != 0) {
				level = logger.LevelFromCount(verboseCount - quietCount)
			}
			if err := logger.Init(level, cfg.LogFile); err != nil {
				return err
			}

			return serve(c.Context(), cfg.ControlDir, addr, forwarderBin)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":4020", "HTTP listen address")
	flags.StringVar(&controlDir, "control-dir", "", "override the control directory")
	flags.StringVar(&logFile, "log-file", "", "append structured logs to this file")
	flags.StringVar(&verbosity, "verbosity", "", "silent|error|warn|info|verbose|debug")
	flags.StringVar(&forwarderBin, "forwarder-bin", "vibetunnel-fwd", "path to the vibetunnel-fwd binary used to spawn sessions")
	flags.CountVarP(&quietCount, "quiet", "q", "decrease verbosity (stackable)")
	flags.CountVarP(&verboseCount, "verbose", "v", "increase verbosity (stackable)")

	cmd.SetContext(context.Background())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vibetunneld:", err)
		return 1
	}
	return 0
}

func serve(parentCtx context.Context, controlDir, addr, forwarderBin string) error {
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(controlDir)
	sessions := newSessionHub(controlDir, reg)
	hub := wsmux.NewHub(reg, sessions.snapshot)
	sessions.hub = hub

	reg.OnEvent(sessions.onRegistryEvent)

	w := watcher.New(controlDir, reg)
	go w.Run(ctx)

	api := restapi.New(controlDir, reg, hub, sessions.snapshot, sessions.text, forwarderBin, restapi.NoAuth)

	mux := api.Mux()
	mux.HandleFunc("GET /ws", wsmux.Handler(hub, wsmux.NoAuth))

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vibetunneld listening", "addr", addr, "controlDir", controlDir)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("vibetunneld shutting down")
		api.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		sessions.closeAll()
		hub.CloseIPC()
		return err
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// sessionHub owns the per-session terminal emulator, coalescer, and tailer
// that the watcher/registry don't know about, keyed by session id.
type sessionHub struct {
	controlDir string
	reg        *registry.Registry
	hub        *wsmux.Hub

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	emu       *vt.Emulator
	coalescer *vt.Coalescer
	cancel    context.CancelFunc
}

func newSessionHub(controlDir string, reg *registry.Registry) *sessionHub {
	return &sessionHub{controlDir: controlDir, reg: reg, sessions: make(map[string]*liveSession)}
}

func (s *sessionHub) onRegistryEvent(ev registry.Event) {
	switch ev.Kind {
	case registry.EventAppeared:
		s.start(ev.SessionID, ev.Record)
	case registry.EventRemoved:
		s.stop(ev.SessionID)
	}
}

func (s *sessionHub) start(id string, rec *session.Record) {
	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	cols, rows := defaultCols, defaultRows
	if rec != nil {
		if rec.InitialCols != nil {
			cols = *rec.InitialCols
		}
		if rec.InitialRows != nil {
			rows = *rec.InitialRows
		}
	}
	emu := vt.New(cols, rows)

	ls := &liveSession{emu: emu}
	ls.coalescer = vt.NewCoalescer(func() { s.hub.BroadcastSnapshot(id) })

	ctx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel

	s.mu.Lock()
	s.sessions[id] = ls
	s.mu.Unlock()

	tl := tailer.New(s.controlDir, id, emu, s.reg, func(sessionID string, data []byte) {
		s.hub.BroadcastOutput(sessionID, data)
	})
	tl.SetOnChange(func(sessionID string) { ls.coalescer.MarkDirty() })

	go tl.Run(ctx)
}

func (s *sessionHub) stop(id string) {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	ls.cancel()
	ls.coalescer.Stop()
}

func (s *sessionHub) closeAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.stop(id)
	}
}

func (s *sessionHub) get(id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[id]
	return ls, ok
}

func (s *sessionHub) snapshot(id string) ([]byte, bool) {
	ls, ok := s.get(id)
	if !ok {
		return nil, false
	}
	return ls.emu.Snapshot(), true
}

func (s *sessionHub) text(id string) (string, bool) {
	ls, ok := s.get(id)
	if !ok {
		return "", false
	}
	return ls.emu.Text(), true
}

func defaultOverridesPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return dir + "/.vibetunnel/vibetunneld.yaml"
}

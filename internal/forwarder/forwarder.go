// Package forwarder implements vibetunnel-fwd's session lifecycle (§4.E):
// fork a command under a PTY, record its output as asciinema v2, filter its
// title sequences, and expose a framed IPC control socket for resize/input/
// kill/rename — all while staying attached to the invoking terminal.
package forwarder

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vibetunnel/vibetunnel-go/internal/config"
	"github.com/vibetunnel/vibetunnel-go/internal/ipc"
	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/ptywrap"
	"github.com/vibetunnel/vibetunnel-go/internal/recorder"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/titlefilter"
)

// Options are the resolved arguments for one forwarder invocation.
type Options struct {
	ControlDir  string
	SessionID   string // generated if empty
	Name        string
	TitleMode   titlefilter.Mode
	Command     []string
	WorkingDir  string
	MonitorOnly bool // don't forward local stdin to the child
	RefuseNested bool
}

// sizePollInterval and mtimePollInterval mirror §5's named timeouts.
const (
	sizePollInterval  = 200 * time.Millisecond
	mtimePollInterval = 500 * time.Millisecond
)

// forwarder holds the live state of one running session.
type forwarder struct {
	opts Options
	id   string

	ptyMu  sync.Mutex
	master *os.File

	stdoutMu sync.Mutex

	rec   *recorder.Recorder
	title *titlefilter.Filter

	recMu    sync.Mutex
	lastName string
	cmd      *exec.Cmd
	ln       net.Listener
}

// Run executes the full forwarder lifecycle and returns the process exit
// code the caller's main() should use.
func Run(ctx context.Context, opts Options) (int, error) {
	if opts.RefuseNested {
		if nested := config.NestedSessionID(); nested != "" {
			return 1, fmt.Errorf("forwarder: refusing to wrap session %s from inside itself", nested)
		}
	}
	if len(opts.Command) == 0 {
		return 1, fmt.Errorf("forwarder: no command given")
	}

	id := opts.SessionID
	if id == "" {
		id = session.GenerateID()
	} else if !session.ValidID(id) {
		return 1, fmt.Errorf("forwarder: invalid session id %q", id)
	}

	dir := session.Dir(opts.ControlDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 1, fmt.Errorf("forwarder: create session dir: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = opts.Command[0]
	}

	rec := &session.Record{
		ID:         id,
		Name:       name,
		Command:    opts.Command,
		WorkingDir: opts.WorkingDir,
		Status:     session.StatusStarting,
		StartedAt:  time.Now(),
	}
	if err := session.Save(opts.ControlDir, rec); err != nil {
		os.RemoveAll(dir)
		return 1, fmt.Errorf("forwarder: write initial session.json: %w", err)
	}

	size := initialSize(opts)

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "VIBETUNNEL_SESSION_ID="+id)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	master, err := ptywrap.Start(cmd, size)
	if err != nil {
		os.RemoveAll(dir)
		return 1, fmt.Errorf("forwarder: open pty: %w", err)
	}

	rc, err := recorder.New(session.StdoutPath(opts.ControlDir, id), size.Cols, size.Rows, joinCommand(opts.Command), name)
	if err != nil {
		master.Close()
		cmd.Process.Kill()
		os.RemoveAll(dir)
		return 1, fmt.Errorf("forwarder: open recording: %w", err)
	}

	ln, err := net.Listen("unix", session.IPCSockPath(opts.ControlDir, id))
	if err != nil {
		rc.Close()
		master.Close()
		cmd.Process.Kill()
		os.RemoveAll(dir)
		return 1, fmt.Errorf("forwarder: listen ipc socket: %w", err)
	}

	cols, rows := size.Cols, size.Rows
	rec.Status = session.StatusRunning
	rec.PID = cmd.Process.Pid
	rec.InitialCols = &cols
	rec.InitialRows = &rows
	if err := session.Save(opts.ControlDir, rec); err != nil {
		logger.Error("forwarder: write running session.json", "id", id, "err", err)
	}

	fw := &forwarder{
		opts:     opts,
		id:       id,
		master:   master,
		rec:      rc,
		title:    titlefilter.New(opts.TitleMode),
		lastName: name,
		cmd:      cmd,
		ln:       ln,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var restoreStdin func()
	if !opts.MonitorOnly {
		if r, err := ptywrap.MakeRaw(int(os.Stdin.Fd())); err == nil {
			restoreStdin = r
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); fw.pumpOutput(runCtx) }()

	if !opts.MonitorOnly {
		wg.Add(1)
		go func() { defer wg.Done(); fw.pumpStdin(runCtx) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); fw.acceptIPC(runCtx) }()

	wg.Add(1)
	go func() { defer wg.Done(); fw.watchLocalSize(runCtx) }()

	wg.Add(1)
	go func() { defer wg.Done(); fw.watchSessionName(runCtx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		case <-runCtx.Done():
		}
	}()

	waitErr := cmd.Wait()
	exitCode := ptywrap.ExitCode(waitErr)

	cancel()
	ln.Close()
	master.Close()
	wg.Wait()

	if restoreStdin != nil {
		restoreStdin()
	}

	if err := fw.rec.WriteExit(exitCode, id); err != nil {
		logger.Error("forwarder: write exit event", "id", id, "err", err)
	}
	fw.rec.Close()

	final, err := session.Load(opts.ControlDir, id)
	if err != nil {
		final = rec
	}
	final.Status = session.StatusExited
	final.ExitCode = &exitCode
	if err := session.Save(opts.ControlDir, final); err != nil {
		logger.Error("forwarder: write exited session.json", "id", id, "err", err)
	}

	return exitCode, nil
}

func initialSize(opts Options) ptywrap.Size {
	if size, ok := ptywrap.LocalSize(os.Stdout); ok {
		return size
	}
	_, fromTTY := ptywrap.LocalSize(os.Stdin)
	return ptywrap.DefaultSize(fromTTY)
}

// pumpOutput is the PTY→stdout/recorder activity.
func (fw *forwarder) pumpOutput(ctx context.Context) {
	buf := make([]byte, 64*1024)
	for {
		n, err := fw.master.Read(buf)
		if n > 0 {
			filtered := fw.title.Process(buf[:n])
			fw.writeFilteredChunk(filtered)
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writeFilteredChunk records and echoes one already-title-filtered chunk,
// serialized against title re-emission so the two never interleave.
func (fw *forwarder) writeFilteredChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if err := fw.rec.WriteOutput(chunk); err != nil {
		logger.Error("forwarder: recorder write failed", "id", fw.id, "err", err)
	}
	fw.stdoutMu.Lock()
	os.Stdout.Write(chunk)
	fw.stdoutMu.Unlock()
}

// pumpStdin is the local stdin→PTY activity.
func (fw *forwarder) pumpStdin(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			fw.ptyMu.Lock()
			fw.master.Write(data)
			fw.ptyMu.Unlock()
			if werr := fw.rec.WriteInput(data); werr != nil {
				logger.Error("forwarder: recorder write failed", "id", fw.id, "err", werr)
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func joinCommand(cmd []string) string {
	out := ""
	for i, c := range cmd {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}

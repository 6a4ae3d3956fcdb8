package forwarder

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/vibetunnel/vibetunnel-go/internal/ipc"
	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/ptywrap"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
)

// acceptIPC is the IPC accept-loop activity: one goroutine per connection,
// each serialized against the others only at the points where they touch
// the PTY master or the parent stdout (via fw.ptyMu / fw.stdoutMu).
func (fw *forwarder) acceptIPC(ctx context.Context) {
	for {
		conn, err := fw.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("forwarder: ipc accept error", "id", fw.id, "err", err)
			continue
		}
		go fw.serveIPCConn(conn)
	}
}

func (fw *forwarder) serveIPCConn(conn net.Conn) {
	defer conn.Close()
	for {
		f, err := ipc.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Debug("forwarder: ipc connection closed", "id", fw.id, "err", err)
			}
			return
		}
		if err := fw.dispatch(f); err != nil {
			ipc.WriteFrame(conn, ipc.Frame{Type: ipc.TypeError, Payload: []byte(err.Error())})
			if errors.Is(err, ipc.ErrFrameTooLarge) {
				return
			}
		}
	}
}

func (fw *forwarder) dispatch(f ipc.Frame) error {
	switch f.Type {
	case ipc.TypeStdinData:
		fw.ptyMu.Lock()
		_, err := fw.master.Write(f.Payload)
		fw.ptyMu.Unlock()
		if err != nil {
			return err
		}
		return fw.rec.WriteInput(f.Payload)

	case ipc.TypeResize:
		cols, rows, err := ipc.DecodeResize(f.Payload)
		if err != nil {
			return err
		}
		return fw.applyResize(cols, rows)

	case ipc.TypeResetSize:
		size := initialSize(fw.opts)
		return fw.applyResize(size.Cols, size.Rows)

	case ipc.TypeKill:
		sig, err := ipc.DecodeKillSignal(f.Payload)
		if err != nil {
			return err
		}
		return syscall.Kill(-fw.cmd.Process.Pid, syscall.Signal(sig))

	case ipc.TypeUpdateTitle:
		name := string(f.Payload)
		if err := session.PatchName(fw.opts.ControlDir, fw.id, name); err != nil {
			return err
		}
		fw.recMu.Lock()
		fw.lastName = name
		fw.recMu.Unlock()
		fw.maybeReemitTitle(name)
		return nil

	default:
		return nil
	}
}

func (fw *forwarder) applyResize(cols, rows int) error {
	fw.ptyMu.Lock()
	err := ptywrap.SetSize(fw.master, ptywrap.Size{Cols: cols, Rows: rows})
	fw.ptyMu.Unlock()
	if err != nil {
		return err
	}
	return fw.rec.WriteResize(cols, rows)
}

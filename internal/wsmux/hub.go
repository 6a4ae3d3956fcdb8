package wsmux

import (
	"sync"

	"github.com/vibetunnel/vibetunnel-go/internal/ipc"
	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
)

// SnapshotFunc returns the current §4.H snapshot for a session, or
// ok=false if the session is unknown.
type SnapshotFunc func(sessionID string) (data []byte, ok bool)

// Hub fans output/snapshot/event traffic out to subscribed connections and
// routes client→server control messages to each session's ipc.sock. One
// Hub serves the whole /ws endpoint.
type Hub struct {
	reg        *registry.Registry
	snapshotFn SnapshotFunc

	mu     sync.Mutex
	subs   map[string]map[*Conn]map[Stream]bool // sessionID -> conn -> streams
	connOf map[*Conn]map[string]bool            // reverse index for RemoveConn

	ipcMu      sync.Mutex
	ipcClients map[string]*ipc.Client
}

// NewHub creates a Hub and subscribes it to reg's events so SESSION_EXIT /
// SESSION_UPDATED fan out as EVENT frames (§4.J "events" stream).
func NewHub(reg *registry.Registry, snapshotFn SnapshotFunc) *Hub {
	h := &Hub{
		reg:        reg,
		snapshotFn: snapshotFn,
		subs:       make(map[string]map[*Conn]map[Stream]bool),
		connOf:     make(map[*Conn]map[string]bool),
		ipcClients: make(map[string]*ipc.Client),
	}
	reg.OnEvent(h.onRegistryEvent)
	return h
}

func (h *Hub) onRegistryEvent(ev registry.Event) {
	switch ev.Kind {
	case registry.EventUpdated:
		h.BroadcastEvent(ev.SessionID, eventPayload{Kind: "session-update", SessionID: ev.SessionID})
	case registry.EventSessionExit:
		exitCode := 0
		if entry, ok := h.reg.Get(ev.SessionID); ok && entry.Record.ExitCode != nil {
			exitCode = *entry.Record.ExitCode
		}
		h.BroadcastEvent(ev.SessionID, eventPayload{Kind: "session-exit", SessionID: ev.SessionID, ExitCode: &exitCode})
		h.closeSession(ev.SessionID)
	}
}

// Subscribe adds streams for (conn, sessionID), sending an immediate
// snapshot if "snapshot" is among them (§4.J).
func (h *Hub) Subscribe(c *Conn, sessionID string, streams map[Stream]bool) {
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Conn]map[Stream]bool)
	}
	existing := h.subs[sessionID][c]
	if existing == nil {
		existing = make(map[Stream]bool)
	}
	for s := range streams {
		existing[s] = true
	}
	h.subs[sessionID][c] = existing

	if h.connOf[c] == nil {
		h.connOf[c] = make(map[string]bool)
	}
	h.connOf[c][sessionID] = true
	h.mu.Unlock()

	if streams[StreamSnapshot] {
		if data, ok := h.snapshotFn(sessionID); ok {
			c.mailbox.push(frameMsg{kind: KindSnapshotVT, sessionID: sessionID, payload: data})
		}
	}
}

// Unsubscribe removes streams for (conn, sessionID).
func (h *Hub) Unsubscribe(c *Conn, sessionID string, streams map[Stream]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.subs[sessionID]
	if conns == nil {
		return
	}
	cur := conns[c]
	for s := range streams {
		delete(cur, s)
	}
	if len(cur) == 0 {
		delete(conns, c)
		delete(h.connOf[c], sessionID)
	}
	if len(conns) == 0 {
		delete(h.subs, sessionID)
	}
}

// RemoveConn tears down every subscription owned by c, called when its WS
// connection closes.
func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.connOf[c] {
		if conns := h.subs[sessionID]; conns != nil {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	delete(h.connOf, c)
}

// closeSession drops every subscription for sessionID once it has exited —
// the spec's per-subscription DRAINING state collapses to an immediate
// CLOSED here since the tailer stops producing once the session is exited
// and fully drained, so there is nothing left to drain through.
func (h *Hub) closeSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[sessionID] {
		delete(h.connOf[c], sessionID)
	}
	delete(h.subs, sessionID)
}

func (h *Hub) subscribers(sessionID string, stream Stream) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Conn
	for c, streams := range h.subs[sessionID] {
		if streams[stream] {
			out = append(out, c)
		}
	}
	return out
}

// BroadcastOutput fans a chunk of a session's output out to its
// output-subscribed connections, in FIFO order per connection (§4.J).
func (h *Hub) BroadcastOutput(sessionID string, data []byte) {
	for _, c := range h.subscribers(sessionID, StreamOutput) {
		c.mailbox.push(frameMsg{kind: KindOutput, sessionID: sessionID, payload: data})
	}
}

// BroadcastSnapshot fetches sessionID's current snapshot once and delivers
// it to every snapshot-subscribed connection; the vt.Coalescer calls this
// at most once per 50ms (and within 200ms of the last change).
func (h *Hub) BroadcastSnapshot(sessionID string) {
	data, ok := h.snapshotFn(sessionID)
	if !ok {
		return
	}
	for _, c := range h.subscribers(sessionID, StreamSnapshot) {
		c.mailbox.push(frameMsg{kind: KindSnapshotVT, sessionID: sessionID, payload: data})
	}
}

// BroadcastEvent fans a structured event out to a session's events stream.
func (h *Hub) BroadcastEvent(sessionID string, e eventPayload) {
	payload := marshalEvent(e)
	for _, c := range h.subscribers(sessionID, StreamEvents) {
		c.mailbox.push(frameMsg{kind: KindEvent, sessionID: sessionID, payload: payload})
	}
}

// ipcClient returns the shared IPC client for a session, creating it on
// first use. Reused across every WS client per §4.J.
func (h *Hub) ipcClient(sessionID string) *ipc.Client {
	h.ipcMu.Lock()
	defer h.ipcMu.Unlock()
	c, ok := h.ipcClients[sessionID]
	if !ok {
		c = ipc.NewClient(h.reg.IPCPath(sessionID))
		h.ipcClients[sessionID] = c
	}
	return c
}

// CloseIPC closes every session's IPC client, per §5's shutdown sequence.
func (h *Hub) CloseIPC() {
	h.ipcMu.Lock()
	defer h.ipcMu.Unlock()
	for id, c := range h.ipcClients {
		if err := c.Close(); err != nil {
			logger.Debug("wsmux: ipc close failed", "session", id, "err", err)
		}
	}
	h.ipcClients = make(map[string]*ipc.Client)
}

func (h *Hub) sendIPC(sessionID string, f ipc.Frame) {
	if err := h.ipcClient(sessionID).Send(f); err != nil {
		logger.Warn("wsmux: ipc send failed", "session", sessionID, "type", f.Type, "err", err)
	}
}

// Input translates a WS "input" message into an IPC STDIN_DATA frame.
func (h *Hub) Input(sessionID string, data []byte) {
	h.sendIPC(sessionID, ipc.Frame{Type: ipc.TypeStdinData, Payload: data})
}

// Resize translates a WS "resize" message into an IPC RESIZE frame.
func (h *Hub) Resize(sessionID string, cols, rows int) {
	h.sendIPC(sessionID, ipc.Frame{Type: ipc.TypeResize, Payload: ipc.EncodeResize(cols, rows)})
}

// ResetSize translates a WS "reset-size" message into an IPC RESET_SIZE frame.
func (h *Hub) ResetSize(sessionID string) {
	h.sendIPC(sessionID, ipc.Frame{Type: ipc.TypeResetSize})
}

// Kill translates a WS "kill" message into an IPC KILL frame.
func (h *Hub) Kill(sessionID string, signal *int) {
	payload := []byte(nil)
	if signal != nil {
		payload = ipc.EncodeKillSignal(*signal)
	}
	h.sendIPC(sessionID, ipc.Frame{Type: ipc.TypeKill, Payload: payload})
}

// Rename translates a WS "rename" message into an IPC UPDATE_TITLE frame
// and emits a session-rename event to this session's events subscribers.
func (h *Hub) Rename(sessionID, name string) {
	h.sendIPC(sessionID, ipc.Frame{Type: ipc.TypeUpdateTitle, Payload: []byte(name)})
	h.BroadcastEvent(sessionID, eventPayload{Kind: "session-rename", SessionID: sessionID, Name: name})
}

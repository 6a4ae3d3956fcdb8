// Package registry is vibetunneld's in-memory session directory (§4.G): a
// single-writer, many-reader map fed by the control-directory watcher, with
// subscribable APPEAR/UPDATE/REMOVE and session-exit events.
package registry

import (
	"sort"
	"sync"

	"github.com/vibetunnel/vibetunnel-go/internal/session"
)

// EventKind identifies a registry change.
type EventKind string

const (
	EventAppeared  EventKind = "SESSION_APPEARED"
	EventUpdated   EventKind = "SESSION_UPDATED"
	EventRemoved   EventKind = "SESSION_REMOVED"
	EventSessionExit EventKind = "SESSION_EXIT"
)

// Event is delivered to subscribers registered via OnEvent.
type Event struct {
	Kind      EventKind
	SessionID string
	Record    *session.Record // nil for EventRemoved / EventSessionExit
}

// Entry is one session's registry-visible state.
type Entry struct {
	Record  session.Record
	IPCPath string
}

// Registry is safe for concurrent use. The watcher is expected to be the
// sole writer (Put/Remove); everything else is read-only or subscribes.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	subs     []func(Event)
	subsMu   sync.Mutex
	controlDir string
}

// New creates an empty registry rooted at controlDir (used to derive each
// session's ipc.sock path).
func New(controlDir string) *Registry {
	return &Registry{
		entries:    make(map[string]Entry),
		controlDir: controlDir,
	}
}

// List returns a snapshot ordered by StartedAt descending.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.StartedAt.After(out[j].Record.StartedAt)
	})
	return out
}

// Get returns the entry for id, if present.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// IPCPath returns the session's socket path regardless of liveness.
func (r *Registry) IPCPath(id string) string {
	return session.IPCSockPath(r.controlDir, id)
}

// OnEvent subscribes cb to every future event. There is no unsubscribe —
// callers are expected to check their own liveness (e.g. a closed channel)
// inside cb.
func (r *Registry) OnEvent(cb func(Event)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs = append(r.subs, cb)
}

func (r *Registry) emit(ev Event) {
	r.subsMu.Lock()
	subs := append([]func(Event){}, r.subs...)
	r.subsMu.Unlock()
	for _, cb := range subs {
		cb(ev)
	}
}

// Put inserts or replaces a session's record, emitting APPEARED on first
// sight and UPDATED thereafter. Called only by the control-directory
// watcher (§4.F).
func (r *Registry) Put(rec session.Record) {
	r.mu.Lock()
	_, existed := r.entries[rec.ID]
	r.entries[rec.ID] = Entry{Record: rec, IPCPath: r.IPCPath(rec.ID)}
	r.mu.Unlock()

	kind := EventAppeared
	if existed {
		kind = EventUpdated
	}
	r.emit(Event{Kind: kind, SessionID: rec.ID, Record: &rec})
}

// Remove deletes a session and emits REMOVED. Called only by the watcher.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if existed {
		r.emit(Event{Kind: EventRemoved, SessionID: id})
	}
}

// SnapshotMap is the plain id→status map that DetectEnded compares; it's a
// narrower view than Entry, carrying only status by id. The watcher does not
// take or compare these maps between scans.
type SnapshotMap map[string]session.Status

// Snapshot returns the current id→status view, for feeding DetectEnded.
func (r *Registry) Snapshot() SnapshotMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(SnapshotMap, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.Record.Status
	}
	return out
}

// DetectEnded is a pure function: sessions present-and-running in oldMap
// but exited-or-absent in newMap, each reported once per transition (§4.G).
// No caller outside the tests uses it; session-exit events come from
// EmitSessionExit.
func DetectEnded(oldMap, newMap SnapshotMap) []string {
	var ended []string
	for id, status := range oldMap {
		if status != session.StatusRunning {
			continue
		}
		newStatus, present := newMap[id]
		if !present || newStatus != session.StatusRunning {
			ended = append(ended, id)
		}
	}
	sort.Strings(ended)
	return ended
}

// EmitSessionExit notifies subscribers that a session has ended. The tailer
// calls it when it reads an "x" event; the watcher does not call it, so a
// session that ends without an "x" event gets no session-exit event. A
// second call for the same id emits a second event.
func (r *Registry) EmitSessionExit(id string) {
	r.emit(Event{Kind: EventSessionExit, SessionID: id})
}

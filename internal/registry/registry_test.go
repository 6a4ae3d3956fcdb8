package registry

import (
	"testing"

	"github.com/vibetunnel/vibetunnel-go/internal/session"
)

func TestPutEmitsAppearedThenUpdated(t *testing.T) {
	r := New(t.TempDir())
	var kinds []EventKind
	r.OnEvent(func(e Event) { kinds = append(kinds, e.Kind) })

	r.Put(session.Record{ID: "a", Status: session.StatusRunning})
	r.Put(session.Record{ID: "a", Status: session.StatusRunning, Name: "renamed"})

	if len(kinds) != 2 || kinds[0] != EventAppeared || kinds[1] != EventUpdated {
		t.Fatalf("got %v", kinds)
	}
}

func TestRemoveEmitsOnlyIfExisted(t *testing.T) {
	r := New(t.TempDir())
	var n int
	r.OnEvent(func(e Event) { n++ })

	r.Remove("missing")
	if n != 0 {
		t.Fatalf("expected no event for unknown id, got %d", n)
	}

	r.Put(session.Record{ID: "a"})
	r.Remove("a")
	if n != 2 { // appeared + removed
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestListOrderedByStartedAtDescending(t *testing.T) {
	r := New(t.TempDir())
	older := session.Record{ID: "old"}
	newer := session.Record{ID: "new"}
	newer.StartedAt = older.StartedAt.Add(1)

	r.Put(older)
	r.Put(newer)

	list := r.List()
	if len(list) != 2 || list[0].Record.ID != "new" || list[1].Record.ID != "old" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestDetectEnded(t *testing.T) {
	old := SnapshotMap{"a": session.StatusRunning, "b": session.StatusRunning, "c": session.StatusExited}
	newMap := SnapshotMap{"a": session.StatusRunning, "c": session.StatusExited}

	ended := DetectEnded(old, newMap)
	if len(ended) != 1 || ended[0] != "b" {
		t.Fatalf("got %v, want [b]", ended)
	}
}

func TestDetectEndedNoneWhenAllStillRunning(t *testing.T) {
	m := SnapshotMap{"a": session.StatusRunning}
	if ended := DetectEnded(m, m); len(ended) != 0 {
		t.Fatalf("got %v, want none", ended)
	}
}

func TestIPCPath(t *testing.T) {
	r := New("/tmp/control")
	if got, want := r.IPCPath("abc"), "/tmp/control/abc/ipc.sock"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

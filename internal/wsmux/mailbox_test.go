package wsmux

import "testing"

func TestMailboxDrainReturnsPushedFrames(t *testing.T) {
	m := newMailbox()
	m.push(frameMsg{kind: KindOutput, sessionID: "s1", payload: []byte("a")})
	m.push(frameMsg{kind: KindOutput, sessionID: "s1", payload: []byte("b")})

	frames, resync, ok := m.drain()
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(frames) != 2 || len(resync) != 0 {
		t.Fatalf("frames=%v resync=%v", frames, resync)
	}
	if string(frames[0].payload) != "a" || string(frames[1].payload) != "b" {
		t.Fatalf("wrong order: %+v", frames)
	}
}

func TestMailboxOverflowDropsSnapshotsAndCoalescesOutput(t *testing.T) {
	m := newMailbox()
	for i := 0; i < maxQueue-1; i++ {
		m.push(frameMsg{kind: KindSnapshotVT, sessionID: "s1", payload: []byte("snap")})
	}
	m.push(frameMsg{kind: KindOutput, sessionID: "s1", payload: []byte("x")}) // queue now exactly full
	// This push observes a full queue and triggers overflow handling on
	// everything queued so far before it is itself appended.
	m.push(frameMsg{kind: KindEvent, sessionID: "s1", payload: []byte(`{"kind":"session-update"}`)})

	frames, resync, ok := m.drain()
	if !ok {
		t.Fatal("expected ok=true")
	}
	for _, f := range frames {
		if f.kind == KindSnapshotVT {
			t.Fatal("expected all pending SNAPSHOT_VT frames dropped on overflow")
		}
	}
	if !resync["s1"] {
		t.Fatalf("expected s1 queued for resync, got %v", resync)
	}
	var sawEvent bool
	for _, f := range frames {
		if f.kind == KindEvent {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Fatal("expected the EVENT frame to survive overflow handling")
	}
}

func TestMailboxCloseUnblocksDrain(t *testing.T) {
	m := newMailbox()
	done := make(chan struct{})
	go func() {
		_, _, ok := m.drain()
		if ok {
			t.Error("expected ok=false after close with nothing queued")
		}
		close(done)
	}()
	m.close()
	<-done
}

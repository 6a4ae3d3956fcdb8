package wsmux

import "sync"

// maxQueue bounds a subscriber's outbound queue per §4.J's backpressure
// policy (~512 frames).
const maxQueue = 512

type frameMsg struct {
	kind      Kind
	sessionID string
	payload   []byte
}

// mailbox is one WS connection's outbound queue. On overflow it drops every
// pending SNAPSHOT_VT frame and coalesces pending OUTPUT frames per session
// into a resync marker, so the writer sends one fresh snapshot instead of
// replaying stale output — never blocking the producer (tailer/coalescer).
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []frameMsg
	resync map[string]bool
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// push enqueues a frame, applying the overflow policy if the queue is full.
// It never blocks.
func (m *mailbox) push(f frameMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if len(m.frames) >= maxQueue {
		m.overflow()
	}
	m.frames = append(m.frames, f)
	m.cond.Signal()
}

// overflow drops pending SNAPSHOT_VT frames and coalesces pending OUTPUT
// frames into per-session resync markers. Caller holds m.mu.
func (m *mailbox) overflow() {
	kept := m.frames[:0]
	for _, f := range m.frames {
		switch f.kind {
		case KindSnapshotVT:
			continue
		case KindOutput:
			if m.resync == nil {
				m.resync = make(map[string]bool)
			}
			m.resync[f.sessionID] = true
		default:
			kept = append(kept, f)
		}
	}
	m.frames = kept
}

// drain blocks until there is work, then returns and clears the queued
// frames and pending resync set. Returns ok=false once the mailbox is
// closed and empty.
func (m *mailbox) drain() (frames []frameMsg, resync map[string]bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.frames) == 0 && len(m.resync) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.frames) == 0 && len(m.resync) == 0 {
		return nil, nil, false
	}
	frames, m.frames = m.frames, nil
	resync, m.resync = m.resync, nil
	return frames, resync, true
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

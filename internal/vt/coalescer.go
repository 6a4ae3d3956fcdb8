package vt

import (
	"sync"
	"time"
)

// Coalescing cadence from §4.J: at most one snapshot per session per 50ms,
// but always one within 200ms of the last emulator change.
const (
	CoalesceDebounce = 50 * time.Millisecond
	CoalesceDeadline = 200 * time.Millisecond
)

// Coalescer debounces repeated "the emulator changed" signals into at most
// one notify() call per window, grounded on amantus-ai-vibetunnel's
// termsocket.Manager.scheduleBufferNotification time.AfterFunc pattern.
type Coalescer struct {
	notify func()

	mu         sync.Mutex
	timer      *time.Timer
	pending    bool
	firstDirty time.Time
}

// NewCoalescer creates a coalescer that calls notify (from its own
// goroutine) no more than once per CoalesceDebounce, and no later than
// CoalesceDeadline after the first MarkDirty in a burst.
func NewCoalescer(notify func()) *Coalescer {
	return &Coalescer{notify: notify}
}

// MarkDirty records that the emulator changed, scheduling a notify per the
// debounce/deadline policy above.
func (c *Coalescer) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.pending {
		c.pending = true
		c.firstDirty = now
		c.schedule(CoalesceDebounce)
		return
	}
	if now.Sub(c.firstDirty) >= CoalesceDeadline {
		c.fireLocked()
		return
	}
	remaining := CoalesceDeadline - now.Sub(c.firstDirty)
	wait := CoalesceDebounce
	if remaining < wait {
		wait = remaining
	}
	c.schedule(wait)
}

func (c *Coalescer) schedule(d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d, c.fire)
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	c.fireLocked()
	c.mu.Unlock()
}

// fireLocked resets pending state and invokes notify outside the lock so a
// slow subscriber write can't block future MarkDirty calls.
func (c *Coalescer) fireLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
	notify := c.notify
	go notify()
}

// Stop cancels any pending timer without firing it.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
}

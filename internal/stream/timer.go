package stream

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long an output may go without activity before it
// is reported idle.
const DefaultIdleTimeout = 300 * time.Second

// IdleTimer invokes a callback after an inactivity timeout. Awake resets the
// internal alarm, extending the inactivity time. Safe for concurrent use.
type IdleTimer struct {
	mu      sync.Mutex
	timeout time.Duration
	onIdle  func()
	timer   *time.Timer
	gen     uint64
	idle    bool
}

// NewIdleTimer returns an inert timer that invokes onIdle when timeout
// elapses without a Start or Awake. onIdle may be nil and must not block.
func NewIdleTimer(timeout time.Duration, onIdle func()) *IdleTimer {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &IdleTimer{timeout: timeout, onIdle: onIdle}
}

// Start arms the timer if it is not already armed and clears the idle flag.
// Repeated calls while armed are no-ops.
func (t *IdleTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idle = false
	if t.timer == nil {
		t.armLocked()
	}
}

// Awake clears the idle flag and rearms the timer for a full timeout from now.
func (t *IdleTimer) Awake() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idle = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armLocked()
}

// Clear disarms the timer without invoking the callback.
func (t *IdleTimer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// Idle reports whether the timer has fired without a subsequent reset.
func (t *IdleTimer) Idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

func (t *IdleTimer) armLocked() {
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(gen) })
}

// fire runs on the timer goroutine when the deadline elapses. A fire whose
// generation no longer matches lost a race with a rearm or Clear and is
// discarded.
func (t *IdleTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.idle = true
	t.timer = nil
	cb := t.onIdle
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

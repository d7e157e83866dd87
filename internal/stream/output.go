package stream

import (
	"context"
	"sync"
	"time"
)

// Output is one consumer-facing delivery variant of a live stream. It owns a
// segment window and an idle timer and coordinates producers and readers.
//
// All mutable state is guarded by mu; producers on other goroutines cross
// into that single-writer discipline via Put. Readers suspend on a broadcast
// wake channel that each Put closes and replaces, so a waiter present at the
// moment of a Put wakes, but the signal does not persist for late arrivals.
type Output struct {
	profile Profile

	mu     sync.Mutex
	window *Window
	timer  *IdleTimer
	wake   chan struct{}
	closed bool

	// reader is the default cursor used by Recv; independent consumers
	// create their own handles with NewReader.
	reader Reader
}

// Reader is a per-consumer handle on an Output with its own progress cursor.
type Reader struct {
	out       *Output
	cursor    int64
	hasCursor bool
}

// NewOutput returns an active-but-empty output for the given profile.
// maxSegments <= 0 and timeout <= 0 select the defaults. onIdle is invoked
// each time the output goes idle; it may be nil and must not block.
func NewOutput(profile Profile, maxSegments int, timeout time.Duration, onIdle func()) *Output {
	o := &Output{
		profile: profile,
		window:  NewWindow(maxSegments),
		timer:   NewIdleTimer(timeout, onIdle),
		wake:    make(chan struct{}),
	}
	o.reader = Reader{out: o}
	return o
}

// Profile returns the delivery profile this output was created with.
func (o *Output) Profile() Profile {
	return o.profile
}

// Idle reports whether the output has seen no activity for the idle timeout.
func (o *Output) Idle() bool {
	return o.timer.Idle()
}

// Put appends a segment to the window and wakes every blocked reader.
// Safe to call from any goroutine; a no-op after Cleanup. A stale or
// duplicate sequence is dropped without waking readers: nothing newer
// became available.
func (o *Output) Put(seg Segment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	// Start idle detection when data begins arriving; no-op while armed.
	o.timer.Start()
	if !o.window.Append(seg) {
		return
	}
	close(o.wake)
	o.wake = make(chan struct{})
}

// Recv waits for and returns the next segment newer than the default
// reader's cursor. The second return is false if the output is empty, torn
// down, or ctx is done before a new segment arrives.
func (o *Output) Recv(ctx context.Context) (Segment, bool) {
	return o.recv(ctx, &o.reader)
}

// NewReader returns a handle with an independent cursor, for consumers that
// must progress through the same output separately.
func (o *Output) NewReader() *Reader {
	return &Reader{out: o}
}

// Recv waits for and returns the next segment newer than this reader's
// cursor.
func (r *Reader) Recv(ctx context.Context) (Segment, bool) {
	return r.out.recv(ctx, r)
}

// recv implements the suspending read against the cursor held by state.
// A reader whose cursor already equals the newest available sequence is
// waiting for something newer, which requires a subsequent Put; after each
// wake the cursor predicate is re-checked, so a wake that did not make a
// strictly newer segment available puts the reader back to sleep. The
// segment returned is whatever is newest at wake time.
func (o *Output) recv(ctx context.Context, state *Reader) (Segment, bool) {
	o.mu.Lock()
	last := int64(0)
	if latest, ok := o.window.Latest(); ok {
		last = latest.Sequence
	}
	for !o.closed && (!state.hasCursor || state.cursor <= last) {
		wake := o.wake
		o.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return Segment{}, false
		}
		o.mu.Lock()
		latest, ok := o.window.Latest()
		if !ok {
			break
		}
		if !state.hasCursor || latest.Sequence > state.cursor {
			break
		}
	}
	defer o.mu.Unlock()

	seg, ok := o.window.Latest()
	if !ok {
		return Segment{}, false
	}
	state.cursor = seg.Sequence
	state.hasCursor = true
	// A completed read is consumer activity and extends the idle deadline.
	o.timer.Awake()
	return seg, true
}

// GetSegment returns the retained segment with the exact sequence number.
// Polling counts as consumer activity, so the idle timer is reset.
func (o *Output) GetSegment(sequence int64) (Segment, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer.Awake()
	return o.window.Lookup(sequence)
}

// Snapshot returns a copy of the full ordered window contents and resets the
// idle timer, like GetSegment.
func (o *Output) Snapshot() []Segment {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer.Awake()
	return o.window.Snapshot()
}

// Segments returns the ordered sequence numbers currently retained.
func (o *Output) Segments() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window.Sequences()
}

// TargetDuration returns the window's rounded worst-case segment duration.
func (o *Output) TargetDuration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window.TargetDuration()
}

// Cleanup tears the output down: blocked readers wake with an empty result,
// the idle timer is disarmed, and the window is emptied. Terminal and
// idempotent.
func (o *Output) Cleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	close(o.wake)
	o.wake = make(chan struct{})
	o.timer.Clear()
	o.window.Clear()
}

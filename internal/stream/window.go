package stream

import "math"

// DefaultMaxSegments is the default window capacity.
const DefaultMaxSegments = 3

// Window is a bounded, sequence-ordered retention buffer for segments with
// FIFO eviction. It is not safe for concurrent use: all access must happen
// under the owning Output's lock.
type Window struct {
	max      int
	segments []Segment
}

// NewWindow returns an empty window holding at most max segments.
// If max <= 0, DefaultMaxSegments is used.
func NewWindow(max int) *Window {
	if max <= 0 {
		max = DefaultMaxSegments
	}
	return &Window{max: max, segments: make([]Segment, 0, max)}
}

// Append inserts seg at the end, evicting the oldest segment first when the
// window is full, and reports whether the segment was accepted. A segment
// whose sequence is not greater than the newest retained one is ignored,
// keeping sequences strictly increasing.
func (w *Window) Append(seg Segment) bool {
	if n := len(w.segments); n > 0 && seg.Sequence <= w.segments[n-1].Sequence {
		return false
	}
	if len(w.segments) >= w.max {
		w.segments = append(w.segments[:0], w.segments[1:]...)
	}
	w.segments = append(w.segments, seg)
	return true
}

// Sequences returns the retained sequence numbers, oldest first.
func (w *Window) Sequences() []int64 {
	seqs := make([]int64, 0, len(w.segments))
	for _, seg := range w.segments {
		seqs = append(seqs, seg.Sequence)
	}
	return seqs
}

// Lookup returns the retained segment with the exact sequence number.
func (w *Window) Lookup(sequence int64) (Segment, bool) {
	for _, seg := range w.segments {
		if seg.Sequence == sequence {
			return seg, true
		}
	}
	return Segment{}, false
}

// Latest returns the most recently appended segment.
func (w *Window) Latest() (Segment, bool) {
	if len(w.segments) == 0 {
		return Segment{}, false
	}
	return w.segments[len(w.segments)-1], true
}

// Snapshot returns a copy of the retained segments, oldest first.
func (w *Window) Snapshot() []Segment {
	out := make([]Segment, len(w.segments))
	copy(out, w.segments)
	return out
}

// TargetDuration returns the rounded maximum segment duration in seconds,
// never less than 1. An empty window reports 1.
func (w *Window) TargetDuration() int {
	max := 0.0
	for _, seg := range w.segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	d := int(math.Round(max))
	if d < 1 {
		return 1
	}
	return d
}

// Len returns the number of retained segments.
func (w *Window) Len() int {
	return len(w.segments)
}

// Clear empties the window.
func (w *Window) Clear() {
	w.segments = w.segments[:0]
}

package engine

import (
	"time"

	"authguard/internal/model"
)

type failureEntry struct {
	ts  time.Time
	ref string
}

// WindowState tracks recent authentication failures for one WindowKey.
// Entries are kept in arrival order; identical timestamps keep their
// insertion order. Eviction advances a head index instead of reslicing
// on every event (amortized O(1) per event).
//
// A success does not delete history: it moves the resolved mark past
// the accumulated failures, so thresholding restarts from zero while
// the evidence trail survives until it ages out of the window.
type WindowState struct {
	key      model.WindowKey
	duration time.Duration

	entries  []failureEntry
	head     int
	resolved int // index boundary; entries before it no longer count

	alerted       bool
	correlationID string

	lastTouched time.Time
}

func NewWindowState(key model.WindowKey, duration time.Duration) *WindowState {
	return &WindowState{
		key:      key,
		duration: duration,
		entries:  make([]failureEntry, 0, 16),
	}
}

// Evict discards entries strictly older than cutoff. When the window
// empties completely the alerted marker is cleared: the burst is over
// and a later crossing is a new incident.
func (w *WindowState) Evict(cutoff time.Time) {
	for w.head < len(w.entries) {
		if !w.entries[w.head].ts.Before(cutoff) {
			break
		}
		w.head++
	}
	if w.resolved < w.head {
		w.resolved = w.head
	}
	if w.head > 0 && w.head*2 >= len(w.entries) {
		w.entries = append([]failureEntry{}, w.entries[w.head:]...)
		w.resolved -= w.head
		w.head = 0
	}
	if w.countable() == 0 {
		w.alerted = false
		w.correlationID = ""
	}
}

// RecordFailure appends a failure and stamps activity.
func (w *WindowState) RecordFailure(ts time.Time, ref string) {
	w.entries = append(w.entries, failureEntry{ts: ts, ref: ref})
	w.lastTouched = ts
}

// Resolve marks the accumulated history as no longer alertable. Models
// a legitimate login ending a probe's relevance.
func (w *WindowState) Resolve(ts time.Time) {
	w.resolved = len(w.entries)
	w.alerted = false
	w.correlationID = ""
	w.lastTouched = ts
}

func (w *WindowState) countable() int {
	start := w.head
	if w.resolved > start {
		start = w.resolved
	}
	return len(w.entries) - start
}

func (w *WindowState) countStart() int {
	start := w.head
	if w.resolved > start {
		start = w.resolved
	}
	return start
}

// Snapshot reports the post-eviction in-window failure count and span.
func (w *WindowState) Snapshot() model.WindowSnapshot {
	snap := model.WindowSnapshot{
		Key:      w.key,
		Failures: w.countable(),
		Resolved: w.resolved > w.head,
	}
	if snap.Failures > 0 {
		oldest := w.entries[w.countStart()].ts
		newest := w.entries[len(w.entries)-1].ts
		snap.Oldest = oldest
		snap.Newest = newest
		snap.Span = newest.Sub(oldest)
	}
	return snap
}

// EventRefs returns up to max raw references for the countable entries,
// newest last. Used as alert evidence.
func (w *WindowState) EventRefs(max int) []string {
	start := w.countStart()
	n := len(w.entries) - start
	if n <= 0 {
		return nil
	}
	if max > 0 && n > max {
		start = len(w.entries) - max
		n = max
	}
	out := make([]string, 0, n)
	for i := start; i < len(w.entries); i++ {
		if w.entries[i].ref != "" {
			out = append(out, w.entries[i].ref)
		}
	}
	return out
}

// Idle reports whether the key has seen no activity since the cutoff
// and holds no countable entries, making it eligible for removal.
func (w *WindowState) Idle(cutoff time.Time) bool {
	if len(w.entries) > w.head {
		return false
	}
	return w.lastTouched.Before(cutoff)
}

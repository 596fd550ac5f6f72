package glucose

import (
	"sync"
	"time"
)

const DefaultHorizon = 24 * time.Hour

// Window is a rolling, time-bounded buffer of readings for one session.
// Entries older than the horizon relative to "now" at append time are
// evicted on each append. Appends must arrive in increasing timestamp
// order; the buffer is never re-sorted.
type Window struct {
	mu       sync.Mutex
	horizon  time.Duration
	readings []Reading

	now func() time.Time
}

func NewWindow(horizon time.Duration) *Window {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Window{horizon: horizon, now: time.Now}
}

func (w *Window) Append(r Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.horizon)

	w.readings = append(w.readings, r)

	// Readings are ordered, so everything to evict is a prefix.
	i := 0
	for i < len(w.readings) && !w.readings[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		w.readings = append(w.readings[:0], w.readings[i:]...)
	}
}

// Latest returns the most recent reading, if any.
func (w *Window) Latest() (Reading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.readings) == 0 {
		return Reading{}, false
	}
	return w.readings[len(w.readings)-1], true
}

// Snapshot returns a copy of the readings within the given horizon,
// oldest first. A zero horizon means the window's full retention.
func (w *Window) Snapshot(horizon time.Duration) []Reading {
	w.mu.Lock()
	defer w.mu.Unlock()

	if horizon <= 0 || horizon > w.horizon {
		horizon = w.horizon
	}
	cutoff := w.now().Add(-horizon)

	out := make([]Reading, 0, len(w.readings))
	for _, r := range w.readings {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.readings)
}

func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = nil
}

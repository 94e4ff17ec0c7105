package pacing

import "time"

// windowSpan is the length of the trailing window used for the spend-rate
// statistics. Entries older than the newest sample minus this span no longer
// influence the mean.
const windowSpan = 30 * time.Minute

type windowSample struct {
	ts    time.Time
	value float64
}

// movingWindow keeps a trailing 30-minute window of timestamped samples and
// computes their mean incrementally. Samples must be pushed in non-decreasing
// timestamp order; eviction is anchored at the newest sample rather than the
// wall clock, so the window behaves the same in replays as in production.
type movingWindow struct {
	samples []windowSample
	head    int
	sum     float64
}

func newMovingWindow() *movingWindow {
	return &movingWindow{}
}

// Push appends a sample to the window.
func (w *movingWindow) Push(ts time.Time, value float64) {
	w.samples = append(w.samples, windowSample{ts: ts, value: value})
	w.sum += value
}

// Mean evicts samples that have fallen out of the trailing window and returns
// the mean of the remainder. An empty window yields 0, not an error: the
// first tick of an hour legitimately has no history yet.
func (w *movingWindow) Mean() float64 {
	if w.head >= len(w.samples) {
		return 0
	}
	cutoff := w.samples[len(w.samples)-1].ts.Add(-windowSpan)
	for w.head < len(w.samples) && w.samples[w.head].ts.Before(cutoff) {
		w.sum -= w.samples[w.head].value
		w.head++
	}
	n := len(w.samples) - w.head
	if n == 0 {
		return 0
	}
	// Reclaim the evicted prefix once it dominates the backing slice.
	if w.head > 64 && w.head > len(w.samples)/2 {
		w.samples = append([]windowSample(nil), w.samples[w.head:]...)
		w.head = 0
	}
	return w.sum / float64(n)
}

// Reset drops all samples and seeds the window with a single zero sample at
// the given anchor, mirroring the state a pacer starts each day with.
func (w *movingWindow) Reset(anchor time.Time) {
	w.samples = w.samples[:0]
	w.head = 0
	w.sum = 0
	w.Push(anchor, 0)
}

// Len reports the number of live samples. Used by tests.
func (w *movingWindow) Len() int {
	return len(w.samples) - w.head
}

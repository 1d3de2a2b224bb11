package compute

import "time"

// PerformanceSample measures one completed tile round-trip. Overhead is
// the turnaround time minus the worker's pure compute time, a proxy for
// dispatch and transfer cost used to drive pool-size adaptation.
type PerformanceSample struct {
	// Total is the full dispatch-to-resolution turnaround.
	Total time.Duration

	// Compute is the worker-reported pure evaluation time.
	Compute time.Duration
}

// Overhead returns Total - Compute, floored at zero.
func (s PerformanceSample) Overhead() time.Duration {
	if s.Total < s.Compute {
		return 0
	}
	return s.Total - s.Compute
}

// sampleWindow is a fixed-size sliding window of performance samples.
// Not safe for concurrent use; the pool mutates it under its own lock.
type sampleWindow struct {
	samples []PerformanceSample
	next    int
	filled  bool
}

// newSampleWindow creates a window holding size samples.
// Size must be at least 1.
func newSampleWindow(size int) *sampleWindow {
	if size < 1 {
		size = 1
	}
	return &sampleWindow{samples: make([]PerformanceSample, size)}
}

// Add records a sample, overwriting the oldest when full.
func (w *sampleWindow) Add(s PerformanceSample) {
	w.samples[w.next] = s
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// Full reports whether the window has wrapped at least once.
func (w *sampleWindow) Full() bool { return w.filled }

// MeanOverhead returns the mean overhead across the whole window.
// Only meaningful once Full reports true.
func (w *sampleWindow) MeanOverhead() time.Duration {
	if len(w.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range w.samples {
		sum += s.Overhead()
	}
	return sum / time.Duration(len(w.samples))
}

// Reset empties the window. Used after a shrink so one congested period
// cannot trigger a cascade of shrinks.
func (w *sampleWindow) Reset() {
	w.next = 0
	w.filled = false
	clear(w.samples)
}

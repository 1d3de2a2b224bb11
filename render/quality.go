package render

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Quality controller defaults.
const (
	// DefaultTargetFrameTime aims at 60 frames per second.
	DefaultTargetFrameTime = time.Second / 60

	// DefaultQualityStep is the fixed multiplier adjustment per update.
	DefaultQualityStep = 0.1

	// DefaultMinQuality floors the multiplier; iteration counts never
	// drop below this share of the base.
	DefaultMinQuality = 0.5

	// DefaultMaxQuality caps the multiplier at full fidelity.
	DefaultMaxQuality = 1.0

	// DefaultFrameWindow is the number of frame-time samples averaged
	// before each adjustment.
	DefaultFrameWindow = 10

	// Hysteresis band around the target frame time. Means inside the
	// band leave quality unchanged, preventing oscillation.
	slowFactor = 1.2
	fastFactor = 0.8
)

// Quality converts observed frame times into a quality multiplier that
// trades fidelity for latency. Frames slower than 1.2× the target pull
// the multiplier down by one step; frames faster than 0.8× push it back
// up; means inside the band hold steady.
//
// Quality is safe for concurrent use.
type Quality struct {
	mu      sync.Mutex
	window  []float64 // frame times in milliseconds
	next    int
	filled  bool
	quality float64

	target float64 // milliseconds
	step   float64
	minQ   float64
	maxQ   float64

	frameHist metric.Float64Histogram
}

// QualityOption configures a Quality controller.
type QualityOption func(*Quality)

// WithTargetFrameTime sets the frame-time goal the controller steers to.
func WithTargetFrameTime(d time.Duration) QualityOption {
	return func(q *Quality) {
		if d > 0 {
			q.target = float64(d) / float64(time.Millisecond)
		}
	}
}

// WithQualityStep sets the per-update multiplier adjustment.
func WithQualityStep(step float64) QualityOption {
	return func(q *Quality) {
		if step > 0 {
			q.step = step
		}
	}
}

// WithQualityBounds sets the multiplier floor and ceiling.
func WithQualityBounds(min, max float64) QualityOption {
	return func(q *Quality) {
		if min > 0 && max >= min {
			q.minQ = min
			q.maxQ = max
		}
	}
}

// WithFrameWindow sets the sliding-window length.
func WithFrameWindow(n int) QualityOption {
	return func(q *Quality) {
		if n >= 1 {
			q.window = make([]float64, n)
		}
	}
}

// NewQuality creates a controller starting at full quality.
func NewQuality(opts ...QualityOption) *Quality {
	q := &Quality{
		window:  make([]float64, DefaultFrameWindow),
		quality: DefaultMaxQuality,
		target:  float64(DefaultTargetFrameTime) / float64(time.Millisecond),
		step:    DefaultQualityStep,
		minQ:    DefaultMinQuality,
		maxQ:    DefaultMaxQuality,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.quality > q.maxQ {
		q.quality = q.maxQ
	}

	meter := otel.Meter("github.com/gogpu/fractal/render")
	hist, err := meter.Float64Histogram("fractal.frame.duration_ms",
		metric.WithDescription("Realized frame duration"), metric.WithUnit("ms"))
	if err == nil {
		q.frameHist = hist
	}
	return q
}

// ObserveFrameTime records one realized frame duration and updates the
// multiplier once the window is full.
func (q *Quality) ObserveFrameTime(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	if q.frameHist != nil {
		q.frameHist.Record(context.Background(), ms)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.window[q.next] = ms
	q.next++
	if q.next == len(q.window) {
		q.next = 0
		q.filled = true
	}
	q.updateLocked()
}

// updateLocked applies the hysteresis policy. Caller holds q.mu.
func (q *Quality) updateLocked() {
	if !q.filled {
		return
	}
	var sum float64
	for _, v := range q.window {
		sum += v
	}
	mean := sum / float64(len(q.window))

	switch {
	case mean > q.target*slowFactor:
		if q.quality > q.minQ {
			q.quality = math.Max(q.minQ, q.quality-q.step)
			slogger().Debug("quality lowered", "mean_ms", mean, "quality", q.quality)
		}
	case mean < q.target*fastFactor:
		if q.quality < q.maxQ {
			q.quality = math.Min(q.maxQ, q.quality+q.step)
			slogger().Debug("quality raised", "mean_ms", mean, "quality", q.quality)
		}
	}
}

// Current returns the quality multiplier.
func (q *Quality) Current() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quality
}

// AdjustedIterations scales a base iteration count by the multiplier,
// floored at the minimum-quality share of the base so detail never
// collapses entirely.
func (q *Quality) AdjustedIterations(base int) int {
	q.mu.Lock()
	qual := q.quality
	minQ := q.minQ
	q.mu.Unlock()

	iters := int(math.Floor(float64(base) * qual))
	floor := int(math.Floor(float64(base) * minQ))
	if iters < floor {
		iters = floor
	}
	if iters < 1 {
		iters = 1
	}
	return iters
}

// ResolutionMultiplier returns the per-axis render-resolution factor,
// the square root of the multiplier so total pixel count reacts more
// gently than iteration count.
func (q *Quality) ResolutionMultiplier() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return math.Sqrt(q.quality)
}

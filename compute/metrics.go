package compute

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// poolMetrics holds the OpenTelemetry instruments for one pool. The
// global meter provider defaults to a noop, so recording is free unless
// the host installs a real provider. A nil *poolMetrics is valid and
// records nothing.
type poolMetrics struct {
	workers      metric.Int64Gauge
	dispatched   metric.Int64Counter
	cancelled    metric.Int64Counter
	faults       metric.Int64Counter
	overheadHist metric.Float64Histogram
}

func newPoolMetrics() *poolMetrics {
	meter := otel.Meter("github.com/gogpu/fractal/compute")

	workers, err := meter.Int64Gauge(
		"fractal.pool.workers",
		metric.WithDescription("Current number of workers in the pool"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		slogger().Warn("pool metrics unavailable", "error", err)
		return nil
	}

	dispatched, err := meter.Int64Counter(
		"fractal.pool.tiles.dispatched",
		metric.WithDescription("Tile requests dispatched to workers"),
		metric.WithUnit("{tile}"),
	)
	if err != nil {
		slogger().Warn("pool metrics unavailable", "error", err)
		return nil
	}

	cancelled, err := meter.Int64Counter(
		"fractal.pool.tiles.cancelled",
		metric.WithDescription("Pending tiles rejected by cancellation"),
		metric.WithUnit("{tile}"),
	)
	if err != nil {
		slogger().Warn("pool metrics unavailable", "error", err)
		return nil
	}

	faults, err := meter.Int64Counter(
		"fractal.pool.worker.faults",
		metric.WithDescription("Worker runtime faults"),
		metric.WithUnit("{fault}"),
	)
	if err != nil {
		slogger().Warn("pool metrics unavailable", "error", err)
		return nil
	}

	overhead, err := meter.Float64Histogram(
		"fractal.pool.overhead_ms",
		metric.WithDescription("Dispatch overhead per tile (turnaround minus compute)"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		slogger().Warn("pool metrics unavailable", "error", err)
		return nil
	}

	return &poolMetrics{
		workers:      workers,
		dispatched:   dispatched,
		cancelled:    cancelled,
		faults:       faults,
		overheadHist: overhead,
	}
}

func (m *poolMetrics) recordWorkers(n int) {
	if m == nil {
		return
	}
	m.workers.Record(context.Background(), int64(n))
}

func (m *poolMetrics) recordDispatch(t FractalType) {
	if m == nil {
		return
	}
	m.dispatched.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("fractal.type", t.String())))
}

func (m *poolMetrics) recordCancelled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.cancelled.Add(context.Background(), int64(n))
}

func (m *poolMetrics) recordFault() {
	if m == nil {
		return
	}
	m.faults.Add(context.Background(), 1)
}

func (m *poolMetrics) recordOverhead(d time.Duration) {
	if m == nil {
		return
	}
	m.overheadHist.Record(context.Background(), float64(d)/float64(time.Millisecond))
}

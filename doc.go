// Package fractal provides the compute core of an interactive fractal
// explorer: a tile-based worker pool with load-aware dispatch and
// self-tuning size, a fingerprint-keyed frame cache with bounded
// oldest-first eviction, and a progressive quality-escalation scheduler
// that trades fidelity for latency based on measured frame times.
//
// The package deliberately knows nothing about what a fractal looks like
// or how pixels reach the screen. Fractal formulas are supplied as pure
// evaluator functions (see [Evaluator] and the eval subpackage for
// ready-made ones), and drawing happens behind the render.Resource
// contract produced by a caller-supplied factory.
//
// # Architecture
//
// An [Explorer] is the explicit context object tying the subsystems
// together:
//
//	compute.Pool      parallel tile evaluation workers
//	compute.Broker    capability-negotiated zero-copy buffers
//	cache.Frames      bounded cache of fully rendered views
//	render.Scheduler  progressive quality escalation per view
//	render.Quality    frame-time-driven quality multiplier
//
// A view-parameter change enters the scheduler, which consults the frame
// cache first; on a miss it fans tiles out to the pool, presents each
// pass as it completes, and caches the final full-quality pass.
//
// # Logging
//
// By default fractal produces no log output. Call [SetLogger] to enable
// structured logging via log/slog.
package fractal

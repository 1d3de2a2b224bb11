// Package compute implements the parallel tile-evaluation layer of the
// fractal explorer: the tile message protocol shared by the orchestrator
// and its workers, a capability-negotiated shared-buffer broker with a
// silent copy fallback, and a worker pool with load-aware dispatch,
// cooperative cancellation, and self-tuning size.
//
// The pool owns a bounded set of worker goroutines. Each worker evaluates
// tile requests with a caller-supplied [Evaluator] and reports results on
// a pool-internal channel; the pool's slot table and pending-task map are
// never touched by workers. Responses arriving for tiles that were
// cancelled in the meantime are silently discarded.
//
// Sizing is asymmetric: the pool shrinks itself by one worker when the
// mean dispatch overhead over a full sample window exceeds a threshold,
// but it never grows automatically. Growth happens only through an
// explicit [Pool.Resize] call.
package compute

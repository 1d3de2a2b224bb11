package compute

import "errors"

// Pool errors. Faults local to one worker or one tile never abort the
// pool or other in-flight tiles.
var (
	// ErrNoAvailableWorker is returned by ComputeTile when every slot is
	// busy or unavailable. Transient and expected under load; retry and
	// backoff policy belongs to the caller.
	ErrNoAvailableWorker = errors.New("compute: no available worker")

	// ErrCancelled rejects a pending task that was cancelled via
	// CancelTiles. Expected during interactive use, not a bug.
	ErrCancelled = errors.New("compute: tile cancelled")

	// ErrWorkerRemoved rejects tasks assigned to a worker that was
	// removed by a pool shrink.
	ErrWorkerRemoved = errors.New("compute: worker removed from pool")

	// ErrWorkerFault rejects tasks assigned to a worker whose evaluator
	// panicked. The pool replaces the worker and keeps running.
	ErrWorkerFault = errors.New("compute: worker runtime fault")

	// ErrPoolShutdown is returned once Shutdown has begun.
	ErrPoolShutdown = errors.New("compute: pool is shutting down")

	// ErrSpawnFailed reports that a worker could not be started. The
	// pool silently runs smaller than requested.
	ErrSpawnFailed = errors.New("compute: worker spawn failed")
)

package fractal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/fractal/cache"
	"github.com/gogpu/fractal/compute"
	"github.com/gogpu/fractal/render"
)

// ErrClosed is returned by Explorer methods after Close.
var ErrClosed = errors.New("fractal: explorer closed")

// Explorer is the explicit context object tying the compute core
// together: broker, worker pool, frame cache, quality controller, and
// progressive scheduler. Construct one per rendering pipeline and pass
// it through; there is no package-level instance.
//
// Explorer is safe for concurrent use, but the frame cache is designed
// for one render pipeline writer: drive a surface from one goroutine.
type Explorer struct {
	broker    *compute.Broker
	pool      *compute.Pool
	frames    *cache.Frames
	quality   *render.Quality
	scheduler *render.Scheduler

	mu     sync.Mutex
	closed bool
}

// New creates an Explorer around the given evaluator.
func New(eval Evaluator, opts ...Option) (*Explorer, error) {
	if eval == nil {
		return nil, fmt.Errorf("fractal: evaluator must not be nil")
	}

	o := defaultExplorerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	brokerOpts := []compute.BrokerOption{compute.WithSharedBuffers(o.sharedBuffers)}
	if o.allocator != nil {
		brokerOpts = append(brokerOpts, compute.WithAllocator(o.allocator))
	}
	broker := compute.NewBroker(brokerOpts...)

	var pool *compute.Pool
	if !o.localOnly {
		var err error
		pool, err = compute.NewPool(eval,
			compute.WithMinWorkers(o.minWorkers),
			compute.WithMaxWorkers(o.maxWorkers),
			compute.WithBroker(broker),
		)
		if err != nil {
			return nil, err
		}
	}

	frames := cache.NewFrames(o.cacheSize)
	quality := render.NewQuality(render.WithTargetFrameTime(o.targetFrameTime))

	factory := o.factory
	if factory == nil {
		factory = render.GrayFactory(nil)
	}

	schedOpts := []render.SchedulerOption{
		render.WithTileSize(o.tileSize),
		render.WithTickInterval(o.tickInterval),
		render.WithBroker(broker),
	}
	if o.onComplete != nil {
		schedOpts = append(schedOpts, render.WithCompletionHook(o.onComplete))
	}
	if o.onPass != nil {
		schedOpts = append(schedOpts, render.WithPassHook(o.onPass))
	}

	scheduler, err := render.NewScheduler(pool, frames, quality, eval, factory, schedOpts...)
	if err != nil {
		if pool != nil {
			pool.Shutdown()
		}
		return nil, err
	}

	return &Explorer{
		broker:    broker,
		pool:      pool,
		frames:    frames,
		quality:   quality,
		scheduler: scheduler,
	}, nil
}

// Render starts a progressive render of the view on the surface. It
// preempts any sequence already running for that surface and returns
// immediately; use the sequence handle to wait for completion.
func (e *Explorer) Render(ctx context.Context, surface render.Surface, t FractalType, params ViewParams) (*render.Sequence, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.mu.Unlock()
	return e.scheduler.Render(ctx, surface, t, params)
}

// ObserveFrameTime feeds one realized frame duration to the adaptive
// quality controller. Hosts call it from their frame loop.
func (e *Explorer) ObserveFrameTime(d time.Duration) {
	e.quality.ObserveFrameTime(d)
}

// Quality returns the adaptive quality controller.
func (e *Explorer) Quality() *render.Quality { return e.quality }

// Pool returns the worker pool, or nil under WithLocalRendering.
func (e *Explorer) Pool() *compute.Pool { return e.pool }

// Frames returns the frame cache.
func (e *Explorer) Frames() *cache.Frames { return e.frames }

// Close preempts running sequences, shuts the pool down, and clears the
// frame cache. Further Render calls fail with [ErrClosed]. Safe to call
// more than once.
func (e *Explorer) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.scheduler.Close()
	if e.pool != nil {
		e.pool.Shutdown()
	}
	e.frames.Clear()
}

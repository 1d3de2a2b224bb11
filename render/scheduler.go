package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/fractal/cache"
	"github.com/gogpu/fractal/compute"
)

// Scheduler defaults.
const (
	// DefaultTileSize is the tile edge length in pixels. 64 keeps a
	// tile's scalar field within L1 reach and gives enough tiles for
	// even work distribution.
	DefaultTileSize = 64

	// DefaultLowQualityFloor is the minimum iteration count of the
	// first progressive pass.
	DefaultLowQualityFloor = 20

	// DefaultLowQualityFraction is the share of the target iteration
	// count used for the first pass.
	DefaultLowQualityFraction = 0.20

	// DefaultEscalationFraction is the share of the target added per
	// escalation tick.
	DefaultEscalationFraction = 0.15

	// DefaultTickInterval spaces escalation passes, standing in for the
	// host's animation-frame tick.
	DefaultTickInterval = 16 * time.Millisecond
)

// ErrSchedulerClosed is returned by Render after Close.
var ErrSchedulerClosed = errors.New("render: scheduler closed")

// Scheduler runs progressive render sequences: cache check, immediate
// low-quality pass, quality escalation per tick, final pass cached. A
// new Render for a surface preempts the sequence already running there.
//
// Surfaces are used as map keys and must be comparable (pointer
// implementations are).
type Scheduler struct {
	pool    *compute.Pool
	frames  *cache.Frames
	quality *Quality
	broker  *compute.Broker
	eval    compute.Evaluator
	factory ResourceFactory

	tileSize   int
	lowFloor   int
	lowFrac    float64
	stepFrac   float64
	tick       time.Duration
	onComplete func(Surface)
	onPass     func(Surface, Resource, bool)

	mu     sync.Mutex
	active map[Surface]*Sequence
	closed bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTileSize sets the tile edge length for pool dispatch.
func WithTileSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n >= 8 {
			s.tileSize = n
		}
	}
}

// WithTickInterval sets the delay between escalation passes.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.tick = d
		}
	}
}

// WithEscalation overrides the progressive pass shape: the iteration
// floor of the first pass, its fraction of the target, and the fraction
// added per tick.
func WithEscalation(floor int, lowFrac, stepFrac float64) SchedulerOption {
	return func(s *Scheduler) {
		if floor >= 1 {
			s.lowFloor = floor
		}
		if lowFrac > 0 && lowFrac <= 1 {
			s.lowFrac = lowFrac
		}
		if stepFrac > 0 && stepFrac <= 1 {
			s.stepFrac = stepFrac
		}
	}
}

// WithBroker lets the scheduler return zero-copy buffers to the broker
// once tile fields have been assembled.
func WithBroker(b *compute.Broker) SchedulerOption {
	return func(s *Scheduler) { s.broker = b }
}

// WithCompletionHook installs the loading-state collaborator, called
// once per sequence when the final pass has been presented and cached.
func WithCompletionHook(hook func(Surface)) SchedulerOption {
	return func(s *Scheduler) { s.onComplete = hook }
}

// WithPassHook installs an observer called after each presented pass.
// The final pass of a sequence passes true.
func WithPassHook(hook func(Surface, Resource, bool)) SchedulerOption {
	return func(s *Scheduler) { s.onPass = hook }
}

// NewScheduler creates a scheduler. The pool may be nil, in which case
// every tile is evaluated on the sequence goroutine; eval and factory
// are required.
func NewScheduler(pool *compute.Pool, frames *cache.Frames, quality *Quality,
	eval compute.Evaluator, factory ResourceFactory, opts ...SchedulerOption) (*Scheduler, error) {
	if eval == nil {
		return nil, fmt.Errorf("render: evaluator must not be nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("render: resource factory must not be nil")
	}
	if quality == nil {
		quality = NewQuality()
	}

	s := &Scheduler{
		pool:     pool,
		frames:   frames,
		quality:  quality,
		eval:     eval,
		factory:  factory,
		tileSize: DefaultTileSize,
		lowFloor: DefaultLowQualityFloor,
		lowFrac:  DefaultLowQualityFraction,
		stepFrac: DefaultEscalationFraction,
		tick:     DefaultTickInterval,
		active:   make(map[Surface]*Sequence),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sequence is the handle for one progressive render. It completes when
// the final pass is cached, the sequence is preempted, or rendering
// fails.
type Sequence struct {
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	cacheHit bool
}

// Done returns a channel closed when the sequence terminates.
func (q *Sequence) Done() <-chan struct{} { return q.done }

// Err returns the terminal error, if any. Valid once Done is closed.
// A preempted sequence reports context.Canceled.
func (q *Sequence) Err() error { return q.err }

// CacheHit reports whether the sequence was satisfied from the frame
// cache without any compute work.
func (q *Sequence) CacheHit() bool { return q.cacheHit }

// Cancel preempts the sequence. No further passes are scheduled.
func (q *Sequence) Cancel() { q.cancel() }

// Render starts a progressive sequence for the given view. Any sequence
// already running for this surface is preempted first. The returned
// handle completes asynchronously; on a cache hit it is already complete
// and no compute work was dispatched.
func (s *Scheduler) Render(ctx context.Context, surface Surface, t compute.FractalType, params compute.ViewParams) (*Sequence, error) {
	if surface == nil {
		return nil, fmt.Errorf("render: surface must not be nil")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	if prev, ok := s.active[surface]; ok {
		prev.cancel()
	}

	// Cache check precedes all compute work.
	if e := s.cacheLookup(surface, t, params); e != nil {
		delete(s.active, surface)
		s.mu.Unlock()

		seq := &Sequence{cancel: func() {}, done: make(chan struct{}), cacheHit: true}
		close(seq.done)
		s.present(surface, e, true)
		if s.onComplete != nil {
			s.onComplete(surface)
		}
		return seq, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	seq := &Sequence{cancel: cancel, done: make(chan struct{})}
	s.active[surface] = seq
	s.mu.Unlock()

	go s.run(runCtx, seq, surface, t, params)
	return seq, nil
}

// cacheLookup returns the cached drawable for the view, or nil. Entries
// whose resource does not implement [Resource] cannot be presented and
// count as misses. Caller holds s.mu.
func (s *Scheduler) cacheLookup(surface Surface, t compute.FractalType, params compute.ViewParams) Resource {
	if s.frames == nil {
		return nil
	}
	entry := s.frames.Get(surface, t, params)
	if entry == nil {
		return nil
	}
	res, ok := entry.Resource.(Resource)
	if !ok {
		return nil
	}
	return res
}

// run executes one progressive sequence to completion or preemption.
func (s *Scheduler) run(ctx context.Context, seq *Sequence, surface Surface, t compute.FractalType, params compute.ViewParams) {
	defer func() {
		s.mu.Lock()
		if s.active[surface] == seq {
			delete(s.active, surface)
		}
		s.mu.Unlock()
		close(seq.done)
	}()

	start := time.Now()
	base := params.Iterations
	if base < 1 {
		base = 1
	}
	target := s.quality.AdjustedIterations(base)
	resMult := s.quality.ResolutionMultiplier()

	// Point-set families cannot be refined by iteration count; they get
	// one direct pass at target quality.
	if t.PointSet() {
		res, err := s.renderPass(ctx, surface, t, params, target, 1.0)
		if err != nil {
			seq.err = err
			return
		}
		if err := ctx.Err(); err != nil {
			res.Destroy()
			seq.err = err
			return
		}
		s.present(surface, res, true)
		s.finish(surface, t, params, res)
		slogger().Debug("direct render complete", "type", t.String(), "elapsed", time.Since(start))
		return
	}

	iters := s.lowFloor
	if frac := int(s.lowFrac * float64(target)); frac > iters {
		iters = frac
	}
	if iters > target {
		iters = target
	}
	step := int(s.stepFrac * float64(target))
	if step < 1 {
		step = 1
	}

	var prev Resource
	for pass := 0; ; pass++ {
		res, err := s.renderPass(ctx, surface, t, params, iters, resMult)
		if err != nil {
			seq.err = err
			if prev != nil {
				prev.Destroy()
			}
			return
		}

		// A pass that finished after preemption is stale. Presenting it
		// would overwrite whatever the superseding sequence has already
		// drawn, so it is dropped instead.
		if err := ctx.Err(); err != nil {
			res.Destroy()
			if prev != nil {
				prev.Destroy()
			}
			seq.err = err
			return
		}

		final := iters >= target
		s.present(surface, res, final)
		if prev != nil {
			prev.Destroy()
		}
		prev = res

		if final {
			s.finish(surface, t, params, res)
			slogger().Debug("progressive render complete",
				"type", t.String(), "passes", pass+1, "elapsed", time.Since(start))
			return
		}

		select {
		case <-ctx.Done():
			seq.err = ctx.Err()
			return
		case <-time.After(s.tick):
		}

		iters += step
		if iters > target {
			iters = target
		}
	}
}

// finish caches the final pass and signals completion. When the frame
// cannot be cached (no usable display identity) the resource has already
// been presented, so it is released here.
func (s *Scheduler) finish(surface Surface, t compute.FractalType, params compute.ViewParams, res Resource) {
	cached := false
	if s.frames != nil {
		cached = s.frames.Put(surface, t, params, res)
	}
	if !cached {
		res.Destroy()
	}
	if s.onComplete != nil {
		s.onComplete(surface)
	}
}

// present draws one pass. Draw failures degrade that single pass and are
// logged, never propagated.
func (s *Scheduler) present(surface Surface, res Resource, final bool) {
	if err := res.Draw(); err != nil {
		slogger().Warn("pass draw failed", "error", err)
	}
	if s.onPass != nil {
		s.onPass(surface, res, final)
	}
}

// renderPass computes one full frame at the given iteration budget and
// resolution multiplier, fanning tiles out to the pool and assembling
// the scalar field as responses arrive. Tiles the pool cannot take
// (ErrNoAvailableWorker) or that fail on a faulted or removed worker are
// evaluated on the calling goroutine instead, so a single failure slows
// one pass rather than aborting it.
func (s *Scheduler) renderPass(ctx context.Context, surface Surface, t compute.FractalType, params compute.ViewParams, iters int, resMult float64) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := surface.DisplaySize()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("render: surface has no pixels (%dx%d)", w, h)
	}
	ratio := 1.0
	if pr, ok := surface.(PixelRatioSurface); ok && pr.PixelRatio() > 0 {
		ratio = pr.PixelRatio()
	}
	pw := physicalDim(w, ratio*resMult)
	ph := physicalDim(h, ratio*resMult)

	p := params
	p.Iterations = iters

	field := NewField(pw, ph)
	view := compute.Rect{Width: pw, Height: ph}

	if s.pool == nil {
		for _, rect := range tileRects(pw, ph, s.tileSize) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resp := compute.EvaluateLocal(compute.NewTileRequest(compute.NewTileID(), rect, view, p, t), s.eval)
			field.CopyTile(rect, resp.Field)
		}
		return s.factory(field, surface)
	}

	g, gctx := errgroup.WithContext(ctx)
	var dispatched []string

	for _, rect := range tileRects(pw, ph, s.tileSize) {
		id := compute.NewTileID()
		fut, err := s.pool.ComputeTile(id, rect, view, p, t)
		switch {
		case err == nil:
			dispatched = append(dispatched, id)
			g.Go(func() error {
				resp, werr := fut.Wait(gctx)
				switch {
				case werr == nil:
					field.CopyTile(rect, resp.Field)
					if s.broker != nil {
						s.broker.Release(resp.Shared)
					}
					return nil
				case errors.Is(werr, compute.ErrWorkerFault),
					errors.Is(werr, compute.ErrWorkerRemoved):
					// Isolated worker problem; recompute here.
					local := compute.EvaluateLocal(compute.NewTileRequest(id, rect, view, p, t), s.eval)
					field.CopyTile(rect, local.Field)
					return nil
				default:
					return werr
				}
			})

		case errors.Is(err, compute.ErrNoAvailableWorker):
			resp := compute.EvaluateLocal(compute.NewTileRequest(id, rect, view, p, t), s.eval)
			field.CopyTile(rect, resp.Field)

		default:
			s.pool.CancelTiles(dispatched)
			_ = g.Wait()
			return nil, err
		}
	}

	if err := g.Wait(); err != nil {
		s.pool.CancelTiles(dispatched)
		return nil, err
	}
	return s.factory(field, surface)
}

// Close preempts every running sequence and rejects further Render
// calls. It does not shut the pool down; the pool has its own owner.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, seq := range s.active {
		seq.cancel()
	}
}

// physicalDim converts a logical dimension to physical pixels, never
// below one.
func physicalDim(n int, factor float64) int {
	d := int(float64(n) * factor)
	if d < 1 {
		d = 1
	}
	return d
}

// tileRects splits a frame into tileSize×tileSize rects in row-major
// order; edge tiles are smaller when the frame is not evenly divisible.
func tileRects(w, h, tileSize int) []compute.Rect {
	tilesX := (w + tileSize - 1) / tileSize
	tilesY := (h + tileSize - 1) / tileSize
	rects := make([]compute.Rect, 0, tilesX*tilesY)
	for ty := range tilesY {
		for tx := range tilesX {
			r := compute.Rect{
				X:      tx * tileSize,
				Y:      ty * tileSize,
				Width:  tileSize,
				Height: tileSize,
			}
			if r.X+r.Width > w {
				r.Width = w - r.X
			}
			if r.Y+r.Height > h {
				r.Height = h - r.Y
			}
			rects = append(rects, r)
		}
	}
	return rects
}

package fractal

import (
	"time"

	"github.com/gogpu/fractal/compute"
	"github.com/gogpu/fractal/render"
)

// explorerOptions holds optional configuration for Explorer creation.
type explorerOptions struct {
	minWorkers    int
	maxWorkers    int
	cacheSize     int
	sharedBuffers bool
	allocator     compute.Allocator
	localOnly     bool

	targetFrameTime time.Duration
	tickInterval    time.Duration
	tileSize        int

	factory    render.ResourceFactory
	onComplete func(render.Surface)
	onPass     func(render.Surface, render.Resource, bool)
}

func defaultExplorerOptions() explorerOptions {
	return explorerOptions{
		minWorkers:      compute.DefaultMinWorkers,
		maxWorkers:      compute.DefaultMaxWorkers,
		cacheSize:       0, // cache package default
		sharedBuffers:   true,
		targetFrameTime: render.DefaultTargetFrameTime,
		tickInterval:    render.DefaultTickInterval,
		tileSize:        render.DefaultTileSize,
	}
}

// Option configures an Explorer during creation.
type Option func(*explorerOptions)

// WithWorkerBounds sets the worker pool size bounds.
func WithWorkerBounds(min, max int) Option {
	return func(o *explorerOptions) {
		if min >= 1 {
			o.minWorkers = min
		}
		if max >= 1 {
			o.maxWorkers = max
		}
	}
}

// WithCacheSize sets the frame-cache capacity.
func WithCacheSize(n int) Option {
	return func(o *explorerOptions) { o.cacheSize = n }
}

// WithSharedBuffers enables or disables zero-copy buffer negotiation.
// Disabled brokers always use copy transfer; that is a slower path, not
// a degraded one.
func WithSharedBuffers(enabled bool) Option {
	return func(o *explorerOptions) { o.sharedBuffers = enabled }
}

// WithAllocator supplies external backing memory for shared buffers,
// e.g. a region the host's GPU device can map.
func WithAllocator(a compute.Allocator) Option {
	return func(o *explorerOptions) { o.allocator = a }
}

// WithLocalRendering disables the worker pool entirely; every tile is
// evaluated on the sequence goroutine. Useful on single-core hosts and
// in tests.
func WithLocalRendering() Option {
	return func(o *explorerOptions) { o.localOnly = true }
}

// WithTargetFrameTime sets the frame-time goal for the adaptive quality
// controller.
func WithTargetFrameTime(d time.Duration) Option {
	return func(o *explorerOptions) {
		if d > 0 {
			o.targetFrameTime = d
		}
	}
}

// WithTickInterval sets the delay between progressive escalation passes.
func WithTickInterval(d time.Duration) Option {
	return func(o *explorerOptions) {
		if d >= 0 {
			o.tickInterval = d
		}
	}
}

// WithTileSize sets the dispatch tile edge length.
func WithTileSize(n int) Option {
	return func(o *explorerOptions) {
		if n >= 8 {
			o.tileSize = n
		}
	}
}

// WithResourceFactory installs the renderable-resource factory. Without
// one, frames are produced as grayscale images with no presentation
// callback.
func WithResourceFactory(f render.ResourceFactory) Option {
	return func(o *explorerOptions) { o.factory = f }
}

// WithCompletionHook installs the loading-state collaborator called when
// a sequence reaches target quality.
func WithCompletionHook(hook func(render.Surface)) Option {
	return func(o *explorerOptions) { o.onComplete = hook }
}

// WithPassHook installs an observer called after each presented pass.
func WithPassHook(hook func(render.Surface, render.Resource, bool)) Option {
	return func(o *explorerOptions) { o.onPass = hook }
}

package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/fractal/cache"
	"github.com/gogpu/fractal/compute"
)

// sizedSurface is a fixed-size display stand-in. Comparable, so it works
// as the scheduler's surface key.
type sizedSurface struct{ w, h int }

func (s sizedSurface) DisplaySize() (int, int) { return s.w, s.h }

// flatEval returns a constant mid-range escape speed.
func flatEval(_, _ float64, _ compute.ViewParams, _ compute.FractalType) float64 {
	return 0.5
}

func waitSequence(t *testing.T, seq *Sequence) {
	t.Helper()
	select {
	case <-seq.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not terminate")
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler(nil, nil, nil, nil, GrayFactory(nil)); err == nil {
		t.Error("nil evaluator accepted")
	}
	if _, err := NewScheduler(nil, nil, nil, flatEval, nil); err == nil {
		t.Error("nil factory accepted")
	}
}

func TestScheduler_ProgressivePassesEscalate(t *testing.T) {
	var mu sync.Mutex
	var finals []bool

	frames := cache.NewFrames(4)
	sched, err := NewScheduler(nil, frames, NewQuality(), flatEval, GrayFactory(nil),
		WithTileSize(8),
		WithTickInterval(0),
		WithPassHook(func(_ Surface, _ Resource, final bool) {
			mu.Lock()
			finals = append(finals, final)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	surface := sizedSurface{16, 16}
	params := compute.DefaultParams()
	params.Iterations = 100

	seq, err := sched.Render(context.Background(), surface, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.Err() != nil {
		t.Fatal(seq.Err())
	}
	if seq.CacheHit() {
		t.Error("fresh render reported a cache hit")
	}

	// Low pass at 20, then +15 per tick: 20, 35, 50, 65, 80, 95, 100.
	mu.Lock()
	defer mu.Unlock()
	if len(finals) != 7 {
		t.Fatalf("pass count = %d, want 7: %v", len(finals), finals)
	}
	for i, final := range finals {
		if want := i == len(finals)-1; final != want {
			t.Errorf("pass %d final = %v, want %v", i, final, want)
		}
	}

	if frames.Get(surface, compute.Mandelbrot, params) == nil {
		t.Error("final pass not cached")
	}
}

func TestScheduler_CacheHitSkipsCompute(t *testing.T) {
	var evals atomic.Int64
	counting := func(_, _ float64, _ compute.ViewParams, _ compute.FractalType) float64 {
		evals.Add(1)
		return 0.5
	}

	frames := cache.NewFrames(4)
	sched, err := NewScheduler(nil, frames, NewQuality(), counting, GrayFactory(nil),
		WithTileSize(8), WithTickInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	surface := sizedSurface{16, 16}
	params := compute.DefaultParams()
	params.Iterations = 50

	seq, err := sched.Render(context.Background(), surface, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.Err() != nil {
		t.Fatal(seq.Err())
	}
	baseline := evals.Load()
	if baseline == 0 {
		t.Fatal("first render evaluated nothing")
	}

	// Sub-tolerance parameter jitter still hits.
	jittered := params
	jittered.Zoom += 1e-6
	seq, err = sched.Render(context.Background(), surface, compute.Mandelbrot, jittered)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if !seq.CacheHit() {
		t.Fatal("repeat render missed the cache")
	}
	if got := evals.Load(); got != baseline {
		t.Errorf("cache hit ran %d evaluations", got-baseline)
	}

	// A different surface is a different frame.
	seq, err = sched.Render(context.Background(), sizedSurface{24, 24}, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.CacheHit() {
		t.Error("different display size hit the cache")
	}
}

func TestScheduler_PointSetRendersOnce(t *testing.T) {
	var passes atomic.Int64
	var finalSeen atomic.Bool

	sched, err := NewScheduler(nil, cache.NewFrames(4), NewQuality(), flatEval, GrayFactory(nil),
		WithTileSize(8),
		WithTickInterval(0),
		WithPassHook(func(_ Surface, _ Resource, final bool) {
			passes.Add(1)
			if final {
				finalSeen.Store(true)
			}
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	params := compute.DefaultParams()
	params.Iterations = 400

	seq, err := sched.Render(context.Background(), sizedSurface{16, 16}, compute.Lyapunov, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.Err() != nil {
		t.Fatal(seq.Err())
	}
	if got := passes.Load(); got != 1 {
		t.Errorf("point-set family rendered %d passes, want exactly 1", got)
	}
	if !finalSeen.Load() {
		t.Error("single pass not marked final")
	}
}

func TestScheduler_PreemptionStopsEscalation(t *testing.T) {
	firstPass := make(chan struct{}, 16)
	sched, err := NewScheduler(nil, nil, NewQuality(), flatEval, GrayFactory(nil),
		WithTileSize(8),
		WithTickInterval(time.Minute),
		WithPassHook(func(_ Surface, _ Resource, _ bool) {
			select {
			case firstPass <- struct{}{}:
			default:
			}
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	surface := sizedSurface{16, 16}
	params := compute.DefaultParams()
	params.Iterations = 500

	seqA, err := sched.Render(context.Background(), surface, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-firstPass:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never presented")
	}

	// A new render for the same surface preempts the sequence in flight.
	moved := params
	moved.OffsetX += 1
	seqB, err := sched.Render(context.Background(), surface, compute.Mandelbrot, moved)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seqA)
	if !errors.Is(seqA.Err(), context.Canceled) {
		t.Errorf("preempted sequence error = %v, want context.Canceled", seqA.Err())
	}

	// Explicit cancellation works the same way.
	seqB.Cancel()
	waitSequence(t, seqB)
	if !errors.Is(seqB.Err(), context.Canceled) {
		t.Errorf("cancelled sequence error = %v, want context.Canceled", seqB.Err())
	}
}

func TestScheduler_PreemptedPassIsDropped(t *testing.T) {
	gate := make(chan struct{})
	release := sync.OnceFunc(func() { close(gate) })
	defer release()
	holding := make(chan struct{})
	var entered sync.Once
	eval := func(_, _ float64, p compute.ViewParams, _ compute.FractalType) float64 {
		if p.ColorScheme == "hold" {
			entered.Do(func() { close(holding) })
			<-gate
			return 0.25
		}
		return 0.75
	}

	var mu sync.Mutex
	var shades []uint8
	frames := cache.NewFrames(4)
	sched, err := NewScheduler(nil, frames, NewQuality(), eval, GrayFactory(nil),
		WithTileSize(8),
		WithTickInterval(0),
		WithPassHook(func(_ Surface, res Resource, _ bool) {
			ir, ok := res.(*ImageResource)
			if !ok {
				return
			}
			r, _, _, _ := ir.Image().At(4, 4).RGBA()
			mu.Lock()
			shades = append(shades, uint8(r>>8))
			mu.Unlock()
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	surface := sizedSurface{8, 8}
	held := compute.DefaultParams()
	held.Iterations = 10
	held.ColorScheme = "hold"

	seqA, err := sched.Render(context.Background(), surface, compute.Mandelbrot, held)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-holding:
	case <-time.After(5 * time.Second):
		t.Fatal("first sequence never started evaluating")
	}

	// Preempt while the first sequence is still inside its only pass.
	moved := compute.DefaultParams()
	moved.Iterations = 10
	moved.OffsetX += 1
	seqB, err := sched.Render(context.Background(), surface, compute.Mandelbrot, moved)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seqB)
	if seqB.Err() != nil {
		t.Fatal(seqB.Err())
	}

	// The stale pass finishes only now, after the newer frame is on
	// screen. It must be discarded, not presented over it.
	release()
	waitSequence(t, seqA)
	if !errors.Is(seqA.Err(), context.Canceled) {
		t.Errorf("preempted sequence error = %v, want context.Canceled", seqA.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	// Field 0.25 maps to shade 63, 0.75 to shade 191.
	for i, shade := range shades {
		if shade == 63 {
			t.Errorf("present %d shows the superseded pass", i)
		}
	}
	if len(shades) == 0 || shades[len(shades)-1] != 191 {
		t.Fatalf("present order = %v, want the newer frame (191) last", shades)
	}
	if frames.Get(surface, compute.Mandelbrot, held) != nil {
		t.Error("superseded pass was cached")
	}
}

func TestScheduler_PoolBackedRender(t *testing.T) {
	pool, err := compute.NewPool(flatEval, compute.WithMaxWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Shutdown()

	frames := cache.NewFrames(4)
	sched, err := NewScheduler(pool, frames, NewQuality(), flatEval, GrayFactory(nil),
		WithTileSize(8), WithTickInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	surface := sizedSurface{32, 32}
	params := compute.DefaultParams()
	params.Iterations = 100

	seq, err := sched.Render(context.Background(), surface, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.Err() != nil {
		t.Fatal(seq.Err())
	}

	entry := frames.Get(surface, compute.Mandelbrot, params)
	if entry == nil {
		t.Fatal("pool-backed render not cached")
	}
	ir, ok := entry.Resource.(*ImageResource)
	if !ok {
		t.Fatalf("cached resource is %T, want *ImageResource", entry.Resource)
	}
	// Constant field 0.5 maps to mid-gray everywhere.
	if r, _, _, _ := ir.Image().At(16, 16).RGBA(); uint8(r>>8) != 127 {
		t.Errorf("cached pixel = %d, want 127", uint8(r>>8))
	}
}

func TestScheduler_BusyPoolFallsBackLocally(t *testing.T) {
	gate := make(chan struct{})
	release := sync.OnceFunc(func() { close(gate) })
	blockable := func(_, _ float64, p compute.ViewParams, _ compute.FractalType) float64 {
		if p.ColorScheme == "block" {
			<-gate
		}
		return 0.5
	}

	pool, err := compute.NewPool(blockable,
		compute.WithMinWorkers(1), compute.WithMaxWorkers(1))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Shutdown()
	defer release()

	// Saturate the single worker with blocked tiles.
	blocked := compute.DefaultParams()
	blocked.ColorScheme = "block"
	for {
		_, err := pool.ComputeTile(compute.NewTileID(),
			compute.Rect{Width: 1, Height: 1}, compute.Rect{}, blocked, compute.Mandelbrot)
		if errors.Is(err, compute.ErrNoAvailableWorker) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	sched, err := NewScheduler(pool, cache.NewFrames(4), NewQuality(), blockable, GrayFactory(nil),
		WithTileSize(8), WithTickInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	params := compute.DefaultParams()
	params.Iterations = 40

	seq, err := sched.Render(context.Background(), sizedSurface{16, 16}, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}
	waitSequence(t, seq)
	if seq.Err() != nil {
		t.Errorf("render against a saturated pool failed: %v", seq.Err())
	}
}

func TestScheduler_CloseRejectsAndPreempts(t *testing.T) {
	sched, err := NewScheduler(nil, nil, NewQuality(), flatEval, GrayFactory(nil),
		WithTileSize(8), WithTickInterval(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	params := compute.DefaultParams()
	params.Iterations = 500
	seq, err := sched.Render(context.Background(), sizedSurface{16, 16}, compute.Mandelbrot, params)
	if err != nil {
		t.Fatal(err)
	}

	sched.Close()
	waitSequence(t, seq)
	if !errors.Is(seq.Err(), context.Canceled) {
		t.Errorf("sequence error after Close = %v, want context.Canceled", seq.Err())
	}

	if _, err := sched.Render(context.Background(), sizedSurface{16, 16}, compute.Mandelbrot, params); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("Render after Close = %v, want ErrSchedulerClosed", err)
	}

	// Idempotent.
	sched.Close()
}

func TestTileRects(t *testing.T) {
	rects := tileRects(100, 50, 64)
	want := []compute.Rect{
		{X: 0, Y: 0, Width: 64, Height: 50},
		{X: 64, Y: 0, Width: 36, Height: 50},
	}
	if len(rects) != len(want) {
		t.Fatalf("rect count = %d, want %d", len(rects), len(want))
	}
	for i, r := range rects {
		if r != want[i] {
			t.Errorf("rect %d = %+v, want %+v", i, r, want[i])
		}
	}

	// Exact division produces uniform tiles covering every pixel.
	rects = tileRects(128, 64, 64)
	if len(rects) != 2 {
		t.Fatalf("rect count = %d, want 2", len(rects))
	}
	var area int
	for _, r := range rects {
		if r.Width != 64 || r.Height != 64 {
			t.Errorf("tile %+v not uniform", r)
		}
		area += r.Pixels()
	}
	if area != 128*64 {
		t.Errorf("covered area = %d, want %d", area, 128*64)
	}
}

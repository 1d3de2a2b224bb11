package compute

import (
	"fmt"
	"time"
)

// worker is one compute goroutine. It owns nothing but its inbox: results
// and faults travel back to the pool on shared channels, and the pool's
// bookkeeping is never touched from here.
type worker struct {
	id    int
	inbox chan any
	quit  chan struct{}
	done  chan struct{}
}

// faultMsg reports an evaluator panic to the pool. The worker pointer
// disambiguates faults from a worker that was already replaced.
type faultMsg struct {
	w   *worker
	err error
}

func newWorker(id, queueSize int) *worker {
	return &worker{
		id:    id,
		inbox: make(chan any, queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// stop signals the worker to exit. Safe to call once.
func (w *worker) stop() { close(w.quit) }

// run is the worker main loop. It processes tile requests sequentially,
// honoring cancel messages for requests still sitting in the inbox. An
// evaluator panic is reported as a fault and terminates the loop; the
// pool replaces the worker.
func (w *worker) run(eval Evaluator, responses chan<- *TileResponse, faults chan<- faultMsg) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			f := faultMsg{w: w, err: fmt.Errorf("%w: %v", ErrWorkerFault, r)}
			select {
			case faults <- f:
			case <-w.quit:
			}
		}
	}()

	// Tile ids cancelled before their request was dequeued.
	dropped := make(map[string]struct{})

	for {
		select {
		case <-w.quit:
			return

		case msg := <-w.inbox:
			switch {
			case IsCancelMessage(msg):
				for _, id := range msg.(*CancelMessage).IDs {
					dropped[id] = struct{}{}
				}

			case IsTileRequest(msg):
				req := msg.(*TileRequest)
				if _, ok := dropped[req.ID]; ok {
					delete(dropped, req.ID)
					continue
				}
				resp := evaluateTile(req, eval)
				select {
				case responses <- resp:
				case <-w.quit:
					return
				}
			}
		}
	}
}

// evaluateTile computes the scalar field for one tile. When the request
// carries a shared buffer the field is written directly into it and the
// response's Field aliases the same storage, so no copy crosses the
// channel either way.
func evaluateTile(req *TileRequest, eval Evaluator) *TileResponse {
	start := time.Now()

	tw, th := req.Rect.Width, req.Rect.Height
	var field []float32
	if req.Shared != nil && len(req.Shared.Data()) >= tw*th {
		field = req.Shared.Data()[:tw*th]
	} else {
		field = make([]float32, tw*th)
	}

	// Pixel pitch in plane units, square pixels anchored to the shorter
	// view axis so zoom means the same thing for any aspect ratio.
	short := req.View.Width
	if req.View.Height < short {
		short = req.View.Height
	}
	zoom := req.Params.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	pitch := planeSpan / (zoom * float64(short))

	cx := float64(req.View.X) + float64(req.View.Width)/2
	cy := float64(req.View.Y) + float64(req.View.Height)/2

	for y := 0; y < th; y++ {
		im := req.Params.OffsetY + (float64(req.Rect.Y+y)+0.5-cy)*pitch*req.Params.ScaleY
		row := field[y*tw:]
		for x := 0; x < tw; x++ {
			re := req.Params.OffsetX + (float64(req.Rect.X+x)+0.5-cx)*pitch*req.Params.ScaleX
			row[x] = float32(eval(re, im, req.Params, req.Type))
		}
	}

	meta := TileMeta{
		ComputeTime: time.Since(start),
		Width:       tw,
		Height:      th,
	}
	resp := NewTileResponse(req.ID, field, meta)
	resp.Shared = req.Shared
	return resp
}

// EvaluateLocal computes a tile on the calling goroutine, bypassing the
// pool. Callers use it as the fallback when ComputeTile reports
// [ErrNoAvailableWorker].
func EvaluateLocal(req *TileRequest, eval Evaluator) *TileResponse {
	return evaluateTile(req, eval)
}

// planeSpan is the plane width visible across the shorter view axis at
// zoom 1 with unit scale.
const planeSpan = 4.0

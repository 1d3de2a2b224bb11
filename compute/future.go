package compute

import "context"

// Future is the pool's handle for one in-flight tile. It resolves exactly
// once: with the tile response, or with an error on fault, cancellation,
// pool shrink, or shutdown.
//
// A Future supports a single waiter. Wait consumes the outcome; a second
// Wait on the same Future blocks until the context expires.
type Future struct {
	ch chan outcome
}

type outcome struct {
	resp *TileResponse
	err  error
}

func newFuture() *Future {
	return &Future{ch: make(chan outcome, 1)}
}

// resolve delivers the terminal outcome. The pool guarantees exactly one
// terminal event per pending task, so the buffered send never blocks.
func (f *Future) resolve(resp *TileResponse, err error) {
	f.ch <- outcome{resp: resp, err: err}
}

// Wait blocks until the tile resolves or ctx expires. A ctx expiry does
// not cancel the underlying work; use [Pool.CancelTiles] for that.
func (f *Future) Wait(ctx context.Context) (*TileResponse, error) {
	select {
	case o := <-f.ch:
		return o.resp, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

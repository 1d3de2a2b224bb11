package compute

import (
	"time"

	"github.com/google/uuid"
)

// Rect is a rectangular pixel region of the current view, in surface
// coordinates. Tiles are independently computable: a worker needs nothing
// beyond its request to evaluate its rect.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Pixels returns the number of pixels covered by the rect.
func (r Rect) Pixels() int { return r.Width * r.Height }

// Empty reports whether the rect covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Message tags used by the protocol predicates.
const (
	tagTileRequest  = "tile-request"
	tagTileResponse = "tile-response"
	tagCancel       = "cancel"
)

// TileRequest asks a worker to evaluate one tile. Immutable once sent:
// the params snapshot is a value copy and workers never write to any
// field. ID is caller-generated and must be unique among in-flight
// requests; see [NewTileID].
type TileRequest struct {
	tag string

	// ID identifies the request and its eventual response.
	ID string

	// Rect is the pixel region to evaluate.
	Rect Rect

	// Params is the view-parameter snapshot for this tile.
	Params ViewParams

	// Type selects the fractal family.
	Type FractalType

	// View is the full frame the rect belongs to, typically
	// {0, 0, frameWidth, frameHeight}. Workers use it to map the rect's
	// pixels onto the complex plane around the view center.
	View Rect

	// Shared, when non-nil, is the zero-copy destination buffer. The
	// worker writes the scalar field directly into it and the response
	// carries no field payload of its own.
	Shared *ScalarBuffer
}

// TileMeta carries per-tile compute measurements back to the pool.
type TileMeta struct {
	// ComputeTime is the pure evaluation time inside the worker,
	// excluding queueing and transfer.
	ComputeTime time.Duration

	// Width and Height echo the evaluated rect dimensions.
	Width  int
	Height int
}

// TileResponse is a worker's answer to one TileRequest.
type TileResponse struct {
	tag string

	// ID matches the originating request.
	ID string

	// Field is the row-major scalar field, one value per pixel, each a
	// normalized escape speed in [0, 1] or [InSet]. When the request
	// carried a shared buffer, Field aliases that buffer's data.
	Field []float32

	// Shared echoes the request's zero-copy buffer, if one was used.
	// The consumer returns it to the broker once Field has been read.
	Shared *ScalarBuffer

	// Meta holds compute measurements.
	Meta TileMeta
}

// CancelMessage tells a worker to drop queued requests it has not started
// yet. The pool expands "cancel everything" into explicit id lists before
// sending, so IDs is always concrete here.
type CancelMessage struct {
	tag string

	// IDs lists the tile ids to drop.
	IDs []string
}

// NewTileID returns a unique id for a tile request.
func NewTileID() string { return uuid.NewString() }

// NewTileRequest packages a tile request with a value snapshot of the
// caller's view parameters. The view rect is the full frame the tile
// belongs to; a zero view defaults to the tile's own rect.
func NewTileRequest(id string, rect, view Rect, params ViewParams, t FractalType) *TileRequest {
	if view.Empty() {
		view = rect
	}
	return &TileRequest{
		tag:    tagTileRequest,
		ID:     id,
		Rect:   rect,
		View:   view,
		Params: params,
		Type:   t,
	}
}

// NewTileResponse packages a tile response.
func NewTileResponse(id string, field []float32, meta TileMeta) *TileResponse {
	return &TileResponse{
		tag:   tagTileResponse,
		ID:    id,
		Field: field,
		Meta:  meta,
	}
}

// NewCancelMessage packages a cancel message for the given ids.
func NewCancelMessage(ids []string) *CancelMessage {
	return &CancelMessage{tag: tagCancel, IDs: ids}
}

// IsTileRequest reports whether msg is a tile request. Structural tag
// check only; never panics.
func IsTileRequest(msg any) bool {
	r, ok := msg.(*TileRequest)
	return ok && r != nil && r.tag == tagTileRequest
}

// IsTileResponse reports whether msg is a tile response.
func IsTileResponse(msg any) bool {
	r, ok := msg.(*TileResponse)
	return ok && r != nil && r.tag == tagTileResponse
}

// IsCancelMessage reports whether msg is a cancel message.
func IsCancelMessage(msg any) bool {
	c, ok := msg.(*CancelMessage)
	return ok && c != nil && c.tag == tagCancel
}

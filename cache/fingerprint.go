package cache

import (
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/fractal/compute"
)

// Quantization steps for fingerprinted parameters. Changes below these
// tolerances map to the same fingerprint and therefore hit the cache; a
// change exceeding the tolerance in any field is a miss.
const (
	zoomStep   = 1e-3
	offsetStep = 1e-4
	scaleStep  = 1e-2
	constStep  = 1e-4
)

// Display identifies the surface a frame was rendered for. The
// fingerprint uses the display pixel dimensions, not the physically
// rendered resolution, which may differ under pixel-ratio scaling or
// progressive resolution reduction.
type Display interface {
	// DisplaySize returns the logical pixel dimensions of the surface.
	DisplaySize() (width, height int)
}

// Key builds the deterministic fingerprint for a view. It returns
// ok=false when no display is available or its dimensions are not
// positive; callers must treat that as "do not cache".
func Key(d Display, t compute.FractalType, p compute.ViewParams) (key string, ok bool) {
	if d == nil {
		return "", false
	}
	w, h := d.DisplaySize()
	if w <= 0 || h <= 0 {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s|z%d|x%d|y%d|i%d|c%q|sx%d|sy%d",
		t.String(),
		quantize(p.Zoom, zoomStep),
		quantize(p.OffsetX, offsetStep),
		quantize(p.OffsetY, offsetStep),
		p.Iterations,
		p.ColorScheme,
		quantize(p.ScaleX, scaleStep),
		quantize(p.ScaleY, scaleStep),
	)
	if t.UsesConstant() {
		fmt.Fprintf(&b, "|jx%d|jy%d",
			quantize(p.ConstX, constStep),
			quantize(p.ConstY, constStep),
		)
	}
	fmt.Fprintf(&b, "|%dx%d", w, h)
	return b.String(), true
}

// quantize maps v onto an integer grid with the given step, so values
// closer than half a step share a fingerprint component.
func quantize(v, step float64) int64 {
	return int64(math.Round(v / step))
}

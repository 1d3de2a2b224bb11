package fractal

import (
	"github.com/gogpu/fractal/compute"
)

// Re-exported compute types, so typical hosts only import the root
// package plus render for their factory.

// ViewParams is a snapshot of the view state for one render.
type ViewParams = compute.ViewParams

// FractalType identifies a fractal family.
type FractalType = compute.FractalType

// Fractal families.
const (
	Mandelbrot  = compute.Mandelbrot
	Julia       = compute.Julia
	BurningShip = compute.BurningShip
	Tricorn     = compute.Tricorn
	Lyapunov    = compute.Lyapunov
)

// Evaluator maps one plane coordinate to a scalar; see compute.Evaluator.
type Evaluator = compute.Evaluator

// DefaultParams returns a ViewParams centered on the origin at zoom 1.
func DefaultParams() ViewParams { return compute.DefaultParams() }

package compute

// FractalType identifies a fractal family. The compute layer never
// interprets the type beyond the predicates below; the actual formula is
// supplied by the caller as an [Evaluator].
type FractalType uint8

const (
	// Mandelbrot is the classic z² + c escape-time set.
	Mandelbrot FractalType = iota

	// Julia is the z² + k family with a fixed complex constant k.
	Julia

	// BurningShip folds the components of z to their absolute values
	// before squaring.
	BurningShip

	// Tricorn conjugates z before squaring.
	Tricorn

	// Lyapunov is rendered from a parameter-dependent point set rather
	// than a per-pixel scalar field.
	Lyapunov
)

// String returns a short lowercase name for the fractal type.
func (t FractalType) String() string {
	switch t {
	case Mandelbrot:
		return "mandelbrot"
	case Julia:
		return "julia"
	case BurningShip:
		return "burning-ship"
	case Tricorn:
		return "tricorn"
	case Lyapunov:
		return "lyapunov"
	default:
		return "unknown"
	}
}

// UsesConstant reports whether this family's formula depends on the
// Julia constant in [ViewParams]. Families that ignore the constant keep
// it out of cache fingerprints so that stale constant values from a
// previous Julia session cannot cause spurious cache misses.
func (t FractalType) UsesConstant() bool {
	return t == Julia
}

// PointSet reports whether this family's visual output is generated from
// a parameter-dependent vertex set instead of a per-pixel scalar field.
// Point-set families cannot be refined progressively: a partial iteration
// count would require regenerating geometry, so they are rendered in a
// single pass at target quality.
func (t FractalType) PointSet() bool {
	return t == Lyapunov
}

// ViewParams is a snapshot of the view state for one render. It contains
// scalars only, so assignment is a deep copy; a params value embedded in
// an in-flight tile request cannot be corrupted by later mutation of the
// caller's view state.
type ViewParams struct {
	// Zoom is the magnification factor (1.0 shows the default window).
	Zoom float64

	// OffsetX and OffsetY pan the view center in plane coordinates.
	OffsetX float64
	OffsetY float64

	// Iterations is the escape-time iteration limit at full quality.
	Iterations int

	// ColorScheme identifies the palette used for display. The compute
	// layer never reads it; it participates in cache fingerprints only.
	ColorScheme string

	// ScaleX and ScaleY stretch the plane per axis.
	ScaleX float64
	ScaleY float64

	// ConstX and ConstY are the Julia constant, read only by families
	// for which UsesConstant is true.
	ConstX float64
	ConstY float64
}

// DefaultParams returns a ViewParams centered on the origin at zoom 1
// with a unit per-axis scale.
func DefaultParams() ViewParams {
	return ViewParams{
		Zoom:       1,
		Iterations: 256,
		ScaleX:     1,
		ScaleY:     1,
	}
}

// InSet is the scalar-field sentinel for points that never escaped (they
// are considered inside the set). All other field values are normalized
// escape speeds in [0, 1].
const InSet float32 = -1

// Evaluator maps one plane coordinate to a scalar for the given view
// parameters and fractal family. It must be a pure function: workers call
// it concurrently from multiple goroutines with no synchronization.
//
// The returned value is either a normalized escape speed in [0, 1] or
// [InSet] (as a float64) for interior points.
type Evaluator func(re, im float64, p ViewParams, t FractalType) float64

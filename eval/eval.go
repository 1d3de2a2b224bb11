// Package eval provides ready-made fractal evaluators for the compute
// core. Each evaluator is a pure function of a plane coordinate and the
// view parameters, as required by the compute.Evaluator contract; the
// core itself never imports this package.
package eval

import (
	"math"

	"github.com/gogpu/fractal/compute"
)

// escapeRadius2 is the squared bailout radius. 4 is the classical
// |z| > 2 escape test; the smooth coloring below assumes it.
const escapeRadius2 = 4.0

// Standard returns an evaluator covering every built-in fractal family.
func Standard() compute.Evaluator {
	return func(re, im float64, p compute.ViewParams, t compute.FractalType) float64 {
		switch t {
		case compute.Mandelbrot:
			return escapeTime(0, 0, re, im, p.Iterations, iterSquare)
		case compute.Julia:
			return escapeTime(re, im, p.ConstX, p.ConstY, p.Iterations, iterSquare)
		case compute.BurningShip:
			return escapeTime(0, 0, re, im, p.Iterations, iterShip)
		case compute.Tricorn:
			return escapeTime(0, 0, re, im, p.Iterations, iterTricorn)
		case compute.Lyapunov:
			return lyapunov(re, im, p.Iterations)
		default:
			return float64(compute.InSet)
		}
	}
}

// iterSquare is one z² + c step.
func iterSquare(zr, zi, cr, ci float64) (float64, float64) {
	return zr*zr - zi*zi + cr, 2*zr*zi + ci
}

// iterShip folds z to the first quadrant before squaring.
func iterShip(zr, zi, cr, ci float64) (float64, float64) {
	zr, zi = math.Abs(zr), math.Abs(zi)
	return zr*zr - zi*zi + cr, 2*zr*zi + ci
}

// iterTricorn conjugates z before squaring.
func iterTricorn(zr, zi, cr, ci float64) (float64, float64) {
	return zr*zr - zi*zi + cr, -2*zr*zi + ci
}

// escapeTime runs the iteration to the limit and returns the smooth
// normalized escape speed in [0, 1], or InSet when the orbit never
// leaves the bailout radius.
func escapeTime(zr, zi, cr, ci float64, limit int, step func(zr, zi, cr, ci float64) (float64, float64)) float64 {
	if limit < 1 {
		limit = 1
	}
	for n := 0; n < limit; n++ {
		r2 := zr*zr + zi*zi
		if r2 > escapeRadius2 {
			// Fractional iteration count smooths the banding that an
			// integer count would produce.
			smooth := float64(n) + 1 - math.Log2(math.Log(r2)/2)
			if smooth < 0 {
				smooth = 0
			}
			v := smooth / float64(limit)
			if v > 1 {
				v = 1
			}
			return v
		}
		zr, zi = step(zr, zi, cr, ci)
	}
	return float64(compute.InSet)
}

// lyapunov estimates the Lyapunov exponent of the logistic map with the
// two growth rates taken from the plane coordinate, normalized so
// chaotic regions approach 1 and stable regions approach 0. Points with
// a degenerate orbit are reported as in-set.
func lyapunov(a, b float64, limit int) float64 {
	// Keep the growth rates inside the interesting band of the
	// logistic map.
	a = 2 + math.Mod(math.Abs(a), 2)
	b = 2 + math.Mod(math.Abs(b), 2)
	if limit < 1 {
		limit = 1
	}

	x := 0.5
	var sum float64
	for n := 0; n < limit; n++ {
		r := a
		if n%2 == 1 {
			r = b
		}
		x = r * x * (1 - x)
		d := math.Abs(r * (1 - 2*x))
		if d == 0 || math.IsNaN(x) {
			return float64(compute.InSet)
		}
		sum += math.Log(d)
	}
	exponent := sum / float64(limit)

	// Map exponents from roughly [-2, 2] onto [0, 1].
	v := (exponent + 2) / 4
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return v
}

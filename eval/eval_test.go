package eval

import (
	"testing"

	"github.com/gogpu/fractal/compute"
)

func TestStandard_MandelbrotInterior(t *testing.T) {
	ev := Standard()
	p := compute.DefaultParams()

	// The origin and the period-2 bulb center never escape.
	for _, c := range [][2]float64{{0, 0}, {-1, 0}} {
		if got := ev(c[0], c[1], p, compute.Mandelbrot); got != float64(compute.InSet) {
			t.Errorf("interior point (%v, %v) = %v, want InSet", c[0], c[1], got)
		}
	}
}

func TestStandard_MandelbrotExterior(t *testing.T) {
	ev := Standard()
	p := compute.DefaultParams()

	// Points far outside escape immediately with a normalized speed.
	for _, c := range [][2]float64{{2.5, 0}, {0, 3}, {-3, -3}} {
		got := ev(c[0], c[1], p, compute.Mandelbrot)
		if got < 0 || got > 1 {
			t.Errorf("exterior point (%v, %v) = %v, want within [0, 1]", c[0], c[1], got)
		}
	}

	// A point escaping later scores higher than one escaping at once.
	// 0.26 sits just past the cardioid cusp and takes dozens of
	// iterations to leave.
	slow := ev(0.26, 0, p, compute.Mandelbrot)
	fast := ev(2.5, 0, p, compute.Mandelbrot)
	if slow == float64(compute.InSet) {
		t.Fatal("near-boundary point unexpectedly in set")
	}
	if slow <= fast {
		t.Errorf("slow escape %v not above fast escape %v", slow, fast)
	}
}

func TestStandard_JuliaUsesConstant(t *testing.T) {
	ev := Standard()
	p := compute.DefaultParams()

	// With c = 0 the unit disk is the filled Julia set.
	if got := ev(0.3, 0.3, p, compute.Julia); got != float64(compute.InSet) {
		t.Errorf("disk interior = %v, want InSet with zero constant", got)
	}
	if got := ev(3, 0, p, compute.Julia); got == float64(compute.InSet) {
		t.Error("point outside the disk stayed in set")
	}

	// A constant outside the Mandelbrot set turns the filled set to
	// dust; the same interior point now escapes.
	p.ConstX, p.ConstY = 1, 0
	if got := ev(0.3, 0.3, p, compute.Julia); got == float64(compute.InSet) {
		t.Error("constant change had no effect")
	}
}

func TestStandard_FamiliesDiverge(t *testing.T) {
	ev := Standard()
	p := compute.DefaultParams()

	// The burning ship and tricorn transforms disagree with the plain
	// square step away from the real axis.
	re, im := -0.5, 0.6
	mand := ev(re, im, p, compute.Mandelbrot)
	ship := ev(re, im, p, compute.BurningShip)
	tric := ev(re, im, p, compute.Tricorn)
	if mand == ship && mand == tric {
		t.Errorf("families agree at (%v, %v): %v", re, im, mand)
	}
}

func TestStandard_LyapunovRange(t *testing.T) {
	ev := Standard()
	p := compute.DefaultParams()
	p.Iterations = 200

	for _, c := range [][2]float64{{0.5, 1.2}, {1.1, 0.3}, {1.9, 1.9}} {
		got := ev(c[0], c[1], p, compute.Lyapunov)
		if got == float64(compute.InSet) {
			continue // degenerate orbit, also legal
		}
		if got < 0 || got > 1 {
			t.Errorf("Lyapunov(%v, %v) = %v, want within [0, 1]", c[0], c[1], got)
		}
	}
}

func TestStandard_UnknownFamilyIsInSet(t *testing.T) {
	ev := Standard()
	if got := ev(0, 0, compute.DefaultParams(), compute.FractalType(99)); got != float64(compute.InSet) {
		t.Errorf("unknown family = %v, want InSet", got)
	}
}

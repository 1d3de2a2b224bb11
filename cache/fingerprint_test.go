package cache

import (
	"strings"
	"testing"

	"github.com/gogpu/fractal/compute"
)

// testDisplay is a fixed-size display surface.
type testDisplay struct{ w, h int }

func (d testDisplay) DisplaySize() (int, int) { return d.w, d.h }

func mustKey(t *testing.T, d Display, ft compute.FractalType, p compute.ViewParams) string {
	t.Helper()
	key, ok := Key(d, ft, p)
	if !ok {
		t.Fatal("Key unexpectedly not buildable")
	}
	return key
}

func TestKey_NotBuildableWithoutDisplay(t *testing.T) {
	if _, ok := Key(nil, compute.Mandelbrot, compute.DefaultParams()); ok {
		t.Error("key built without a display")
	}
	if _, ok := Key(testDisplay{0, 600}, compute.Mandelbrot, compute.DefaultParams()); ok {
		t.Error("key built for zero-width display")
	}
	if _, ok := Key(testDisplay{800, -1}, compute.Mandelbrot, compute.DefaultParams()); ok {
		t.Error("key built for negative-height display")
	}
}

func TestKey_SubToleranceChangesHit(t *testing.T) {
	d := testDisplay{800, 600}
	base := compute.DefaultParams()
	ref := mustKey(t, d, compute.Mandelbrot, base)

	tests := []struct {
		name   string
		mutate func(*compute.ViewParams)
	}{
		{"zoom jitter", func(p *compute.ViewParams) { p.Zoom += 1e-5 }},
		{"offset jitter", func(p *compute.ViewParams) { p.OffsetX += 1e-6; p.OffsetY -= 1e-6 }},
		{"scale jitter", func(p *compute.ViewParams) { p.ScaleX += 1e-4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if got := mustKey(t, d, compute.Mandelbrot, p); got != ref {
				t.Errorf("sub-tolerance change produced a new key:\n %s\n %s", ref, got)
			}
		})
	}
}

func TestKey_OverToleranceChangesMiss(t *testing.T) {
	d := testDisplay{800, 600}
	base := compute.DefaultParams()
	ref := mustKey(t, d, compute.Mandelbrot, base)

	tests := []struct {
		name   string
		mutate func(*compute.ViewParams)
	}{
		{"zoom", func(p *compute.ViewParams) { p.Zoom += 0.01 }},
		{"offset x", func(p *compute.ViewParams) { p.OffsetX += 0.001 }},
		{"offset y", func(p *compute.ViewParams) { p.OffsetY -= 0.001 }},
		{"iterations", func(p *compute.ViewParams) { p.Iterations++ }},
		{"color scheme", func(p *compute.ViewParams) { p.ColorScheme = "inferno" }},
		{"scale", func(p *compute.ViewParams) { p.ScaleY += 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if got := mustKey(t, d, compute.Mandelbrot, p); got == ref {
				t.Errorf("%s change did not produce a new key", tt.name)
			}
		})
	}
}

func TestKey_FractalTypeAndDisplaySeparateKeys(t *testing.T) {
	p := compute.DefaultParams()
	ref := mustKey(t, testDisplay{800, 600}, compute.Mandelbrot, p)

	if got := mustKey(t, testDisplay{800, 600}, compute.Tricorn, p); got == ref {
		t.Error("different fractal families share a key")
	}
	if got := mustKey(t, testDisplay{1024, 768}, compute.Mandelbrot, p); got == ref {
		t.Error("different display sizes share a key")
	}
}

func TestKey_JuliaConstantOnlyWhereItApplies(t *testing.T) {
	d := testDisplay{800, 600}
	p := compute.DefaultParams()
	p.ConstX, p.ConstY = -0.8, 0.156

	julia := mustKey(t, d, compute.Julia, p)
	if !strings.Contains(julia, "|jx") {
		t.Errorf("Julia key misses the constant: %s", julia)
	}

	moved := p
	moved.ConstX += 0.001
	if got := mustKey(t, d, compute.Julia, moved); got == julia {
		t.Error("Julia constant change did not produce a new key")
	}

	// For families without a constant the fields are inert.
	mand := mustKey(t, d, compute.Mandelbrot, p)
	if strings.Contains(mand, "|jx") {
		t.Errorf("Mandelbrot key carries a Julia constant: %s", mand)
	}
	if got := mustKey(t, d, compute.Mandelbrot, moved); got != mand {
		t.Error("constant change altered a Mandelbrot key")
	}
}

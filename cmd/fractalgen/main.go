// Command fractalgen renders one fractal view to a PNG through the full
// explorer pipeline: worker pool, progressive scheduler, and frame cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/fractal"
	"github.com/gogpu/fractal/eval"
	"github.com/gogpu/fractal/render"
)

// fileSurface is an offline display target with fixed dimensions.
type fileSurface struct {
	width  int
	height int
}

func (s *fileSurface) DisplaySize() (int, int) { return s.width, s.height }

func main() {
	var (
		width       = flag.Int("width", 1024, "image width")
		height      = flag.Int("height", 768, "image height")
		output      = flag.String("output", "fractal.png", "output file")
		family      = flag.String("fractal", "mandelbrot", "fractal family: mandelbrot, julia, burning-ship, tricorn, lyapunov")
		zoom        = flag.Float64("zoom", 1, "magnification")
		offsetX     = flag.Float64("x", -0.5, "view center, real axis")
		offsetY     = flag.Float64("y", 0, "view center, imaginary axis")
		iters       = flag.Int("iterations", 256, "iteration limit")
		juliaX      = flag.Float64("jx", -0.7, "julia constant, real part")
		juliaY      = flag.Float64("jy", 0.27015, "julia constant, imaginary part")
		workers     = flag.Int("workers", 0, "max workers (0 = pool default)")
		progressive = flag.Bool("progressive", false, "write every progressive pass, numbered")
		verbose     = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Parse()

	if *verbose {
		fractal.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	ftype, err := parseFamily(*family)
	if err != nil {
		log.Fatal(err)
	}

	params := fractal.DefaultParams()
	params.Zoom = *zoom
	params.OffsetX = *offsetX
	params.OffsetY = *offsetY
	params.Iterations = *iters
	params.ConstX = *juliaX
	params.ConstY = *juliaY

	pass := 0
	factory := render.GrayFactory(func(img *image.RGBA) error {
		if !*progressive {
			return nil
		}
		name := passName(*output, pass)
		pass++
		return writePNG(name, img)
	})

	opts := []fractal.Option{fractal.WithResourceFactory(factory)}
	if *workers > 0 {
		opts = append(opts, fractal.WithWorkerBounds(1, *workers))
	}

	explorer, err := fractal.New(eval.Standard(), opts...)
	if err != nil {
		log.Fatalf("explorer: %v", err)
	}
	defer explorer.Close()

	surface := &fileSurface{width: *width, height: *height}
	start := time.Now()

	seq, err := explorer.Render(context.Background(), surface, ftype, params)
	if err != nil {
		log.Fatalf("render: %v", err)
	}
	<-seq.Done()
	if err := seq.Err(); err != nil {
		log.Fatalf("render: %v", err)
	}
	explorer.ObserveFrameTime(time.Since(start))

	// The cached final frame is the full-quality result.
	entry := explorer.Frames().Get(surface, ftype, params)
	if entry == nil {
		log.Fatal("render finished but no frame was cached")
	}
	img := entry.Resource.(*render.ImageResource).Image()
	if err := writePNG(*output, img); err != nil {
		log.Fatalf("save: %v", err)
	}

	log.Printf("%s rendered to %s (%dx%d) in %v", ftype, *output, *width, *height, time.Since(start))
}

func parseFamily(name string) (fractal.FractalType, error) {
	switch strings.ToLower(name) {
	case "mandelbrot":
		return fractal.Mandelbrot, nil
	case "julia":
		return fractal.Julia, nil
	case "burning-ship", "ship":
		return fractal.BurningShip, nil
	case "tricorn":
		return fractal.Tricorn, nil
	case "lyapunov":
		return fractal.Lyapunov, nil
	default:
		return 0, fmt.Errorf("unknown fractal family %q", name)
	}
}

// passName numbers intermediate outputs: out.png -> out.0.png, out.1.png.
func passName(output string, pass int) string {
	if i := strings.LastIndex(output, "."); i > 0 {
		return fmt.Sprintf("%s.%d%s", output[:i], pass, output[i:])
	}
	return fmt.Sprintf("%s.%d", output, pass)
}

func writePNG(name string, img *image.RGBA) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

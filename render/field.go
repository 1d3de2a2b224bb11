package render

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/fractal/compute"
)

// Field is one assembled scalar field at physical render resolution.
// Values are row-major, one per pixel: a normalized escape speed in
// [0, 1] or [compute.InSet] for interior points.
type Field struct {
	Values []float32
	Width  int
	Height int
}

// NewField allocates a zeroed field.
func NewField(width, height int) *Field {
	return &Field{
		Values: make([]float32, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the scalar at (x, y). No bounds check; callers stay inside
// the field dimensions.
func (f *Field) At(x, y int) float32 {
	return f.Values[y*f.Width+x]
}

// CopyTile writes a tile response into the field at the tile's rect.
// Tiles cover disjoint regions, so concurrent CopyTile calls for
// different tiles need no locking.
func (f *Field) CopyTile(rect compute.Rect, values []float32) {
	for y := 0; y < rect.Height; y++ {
		dst := f.Values[(rect.Y+y)*f.Width+rect.X:]
		src := values[y*rect.Width:]
		copy(dst[:rect.Width], src[:rect.Width])
	}
}

// GrayImage maps the field to a grayscale image: escape speed to
// brightness, interior points to black. This is the palette-free default
// used by tests and the demo; real hosts install a coloring factory.
func (f *Field) GrayImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Values {
		if v == compute.InSet {
			continue
		}
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		img.Pix[i] = uint8(v * 255)
	}
	return img
}

// ScaleTo resamples src onto a dstW×dstH RGBA image. Progressive passes
// render below display resolution and are scaled up here before
// presentation; bilinear keeps the cost low enough for per-pass use.
func ScaleTo(src image.Image, dstW, dstH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	b := src.Bounds()
	if b.Dx() == dstW && b.Dy() == dstH {
		xdraw.Copy(dst, image.Point{}, src, b, xdraw.Src, nil)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// ImageResource is a CPU-backed Resource that presents by handing an
// upscaled RGBA image to a host callback.
type ImageResource struct {
	img     *image.RGBA
	present func(*image.RGBA) error
	dead    bool
}

// NewImageResource wraps an image and a presentation callback. A nil
// callback makes Draw a no-op, which suits offline rendering.
func NewImageResource(img *image.RGBA, present func(*image.RGBA) error) *ImageResource {
	return &ImageResource{img: img, present: present}
}

// Image returns the backing image.
func (r *ImageResource) Image() *image.RGBA { return r.img }

// Draw presents the image through the host callback.
func (r *ImageResource) Draw() error {
	if r.present == nil || r.dead {
		return nil
	}
	return r.present(r.img)
}

// Destroy releases the backing image.
func (r *ImageResource) Destroy() {
	r.dead = true
	r.img = nil
}

// Alive reports whether the resource still holds its image. The frame
// cache treats dead resources as misses.
func (r *ImageResource) Alive() bool { return !r.dead }

// GrayFactory returns a ResourceFactory that maps fields to grayscale,
// scales them to the surface's display size, and presents through the
// given callback.
func GrayFactory(present func(*image.RGBA) error) ResourceFactory {
	return func(field *Field, surface Surface) (Resource, error) {
		w, h := surface.DisplaySize()
		img := ScaleTo(field.GrayImage(), w, h)
		return NewImageResource(img, present), nil
	}
}

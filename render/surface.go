package render

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Surface is the display target a frame is rendered for. The scheduler
// only needs its logical pixel dimensions; everything else about the
// surface stays with the host.
//
// Surfaces may optionally implement [PixelRatioSurface] and
// [DeviceHandle] to refine physical resolution and enable GPU-backed
// resource factories.
type Surface interface {
	// DisplaySize returns the logical pixel dimensions of the surface.
	DisplaySize() (width, height int)
}

// PixelRatioSurface is an optional Surface interface for hosts whose
// physical resolution differs from the logical one (HiDPI). The frame
// cache always keys on the logical size; only the rendered resolution
// scales with the ratio.
type PixelRatioSurface interface {
	Surface

	// PixelRatio returns physical pixels per logical pixel.
	PixelRatio() float64
}

// DeviceHandle provides GPU device access from the host application.
//
// The core receives the device from the host, it never creates one. A
// surface implementing DeviceHandle lets a GPU-backed [ResourceFactory]
// share the host's device and queue instead of owning its own, and lets
// brokered buffers be allocated from memory the device can map.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, providing a
// fractal-specific name for the interface while staying compatible with
// the gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider

// TextureDescriptor describes the texture a GPU-backed factory should
// create for one frame. The core fills it in and hands it over; it never
// touches the texture itself.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the physical pixel dimensions.
	Width  uint32
	Height uint32

	// Format is the texture pixel format for the colorized frame.
	Format gputypes.TextureFormat
}

// FrameTextureDescriptor returns the descriptor for a frame of the given
// physical size.
func FrameTextureDescriptor(width, height int) TextureDescriptor {
	return TextureDescriptor{
		Label:  "fractal frame",
		Width:  uint32(width),
		Height: uint32(height),
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
}

// Resource is one drawable frame produced by a [ResourceFactory]. The
// scheduler calls Draw to present it and Destroy when it is replaced or
// evicted; it knows nothing about how drawing happens.
type Resource interface {
	// Draw presents the frame on its surface.
	Draw() error

	// Destroy releases the frame's backing storage.
	Destroy()
}

// ResourceFactory turns an assembled scalar field into a drawable frame
// for the given surface. Color mapping and the drawing mechanism belong
// to the factory, not the core.
type ResourceFactory func(field *Field, surface Surface) (Resource, error)

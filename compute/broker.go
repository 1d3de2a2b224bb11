package compute

import (
	"sync"
)

// Allocator provides backing storage for shared scalar buffers. The
// default allocator hands out plain heap slices; hosts that can map
// externally visible memory (a GPU staging region, a mmap'd segment)
// plug in their own.
type Allocator interface {
	// AllocScalar returns storage for n float32 values. The slice must
	// have length n. Returning an error (or panicking) marks shared
	// buffers unsupported for the broker's lifetime.
	AllocScalar(n int) ([]float32, error)
}

// heapAllocator is the default allocator backed by ordinary Go slices.
type heapAllocator struct{}

func (heapAllocator) AllocScalar(n int) ([]float32, error) {
	return make([]float32, n), nil
}

// ScalarBuffer is a shared scalar-field destination: one 4-byte float per
// pixel, written by exactly one worker and then read by the orchestrator.
// Tile ids are unique per dispatch and a buffer is never attached to two
// concurrent requests, so no locking is needed.
type ScalarBuffer struct {
	data   []float32
	width  int
	height int
}

// Data returns the row-major backing storage.
func (b *ScalarBuffer) Data() []float32 { return b.data }

// Width returns the buffer width in pixels.
func (b *ScalarBuffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *ScalarBuffer) Height() int { return b.height }

// probe dimensions for the capability check.
const probeSize = 4

// probeSentinel is written and read back during the capability probe.
const probeSentinel = float32(0.5)

// Broker negotiates zero-copy scalar buffers between the orchestrator
// and workers. It is always safe to call: when shared buffers are
// disabled, unsupported, or an allocation fails, callers get nil and fall
// back to copy-based transfer. That fallback is the normal path on
// constrained hosts, never an error.
//
// Capability is established once, on first use, by a functional probe:
// allocate a minimal buffer, write a sentinel, read it back, compare.
// Any panic or mismatch during the probe means "unsupported" and is never
// propagated.
type Broker struct {
	enabled bool
	alloc   Allocator

	probeOnce sync.Once
	supported bool

	// pools reuses buffer storage per size, keyed by pixel count.
	pools sync.Map // int -> *sync.Pool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithSharedBuffers enables or disables shared-buffer negotiation.
// The feature flag gates the capability probe: a disabled broker never
// probes and always falls back to copies.
func WithSharedBuffers(enabled bool) BrokerOption {
	return func(b *Broker) { b.enabled = enabled }
}

// WithAllocator replaces the default heap allocator.
func WithAllocator(a Allocator) BrokerOption {
	return func(b *Broker) {
		if a != nil {
			b.alloc = a
		}
	}
}

// NewBroker creates a broker. Shared buffers are enabled by default and
// backed by the heap allocator unless options say otherwise.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		enabled: true,
		alloc:   heapAllocator{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CanUseSharedBuffers reports whether zero-copy transfer is available.
// The first call runs the functional probe; subsequent calls return the
// cached result.
func (b *Broker) CanUseSharedBuffers() bool {
	if b == nil || !b.enabled {
		return false
	}
	b.probeOnce.Do(func() {
		b.supported = b.probe()
		if b.supported {
			slogger().Info("shared buffers enabled")
		} else {
			slogger().Warn("shared buffers unavailable, using copy transfer")
		}
	})
	return b.supported
}

// probe performs the one-shot functional capability check.
func (b *Broker) probe() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slogger().Warn("shared buffer probe panicked", "recovered", r)
			ok = false
		}
	}()

	buf, err := b.alloc.AllocScalar(probeSize)
	if err != nil || len(buf) < probeSize {
		return false
	}
	buf[0] = probeSentinel
	return buf[0] == probeSentinel
}

// CreateScalarBuffer returns a shared buffer sized for one float per
// pixel, or nil on any failure. A nil result is the normal copy-transfer
// fallback; callers must not treat it as an error.
func (b *Broker) CreateScalarBuffer(width, height int) *ScalarBuffer {
	if width <= 0 || height <= 0 || !b.CanUseSharedBuffers() {
		return nil
	}

	n := width * height
	if pool, ok := b.pools.Load(n); ok {
		if v := pool.(*sync.Pool).Get(); v != nil {
			buf := v.(*ScalarBuffer)
			buf.width = width
			buf.height = height
			return buf
		}
	}

	data, err := b.alloc.AllocScalar(n)
	if err != nil || len(data) != n {
		slogger().Warn("shared buffer allocation failed", "pixels", n, "error", err)
		return nil
	}
	return &ScalarBuffer{data: data, width: width, height: height}
}

// Release returns a buffer to the broker for reuse. Safe to call with
// nil. The buffer must not be read or written after release.
func (b *Broker) Release(buf *ScalarBuffer) {
	if b == nil || buf == nil {
		return
	}
	n := len(buf.data)
	pool, _ := b.pools.LoadOrStore(n, &sync.Pool{})
	pool.(*sync.Pool).Put(buf)
}

package compute

import (
	"errors"
	"testing"
)

// failingAllocator always fails, forcing the copy fallback.
type failingAllocator struct{}

func (failingAllocator) AllocScalar(int) ([]float32, error) {
	return nil, errors.New("no memory for you")
}

// panickyAllocator panics, which the probe must swallow.
type panickyAllocator struct{}

func (panickyAllocator) AllocScalar(int) ([]float32, error) {
	panic("allocator exploded")
}

// shortAllocator returns undersized slices.
type shortAllocator struct{}

func (shortAllocator) AllocScalar(n int) ([]float32, error) {
	return make([]float32, n/2), nil
}

func TestBroker_DefaultSupported(t *testing.T) {
	b := NewBroker()
	if !b.CanUseSharedBuffers() {
		t.Error("default broker should support shared buffers")
	}

	buf := b.CreateScalarBuffer(16, 16)
	if buf == nil {
		t.Fatal("CreateScalarBuffer returned nil on a supported broker")
	}
	if len(buf.Data()) != 256 {
		t.Errorf("buffer size = %d, want 256", len(buf.Data()))
	}
	if buf.Width() != 16 || buf.Height() != 16 {
		t.Errorf("buffer dims = %dx%d, want 16x16", buf.Width(), buf.Height())
	}
}

func TestBroker_DisabledByFlag(t *testing.T) {
	b := NewBroker(WithSharedBuffers(false))
	if b.CanUseSharedBuffers() {
		t.Error("disabled broker claims support")
	}
	if buf := b.CreateScalarBuffer(8, 8); buf != nil {
		t.Error("disabled broker handed out a buffer")
	}
}

func TestBroker_ProbeFailureFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		alloc Allocator
	}{
		{"failing", failingAllocator{}},
		{"panicking", panickyAllocator{}},
		{"undersized", shortAllocator{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroker(WithAllocator(tt.alloc))
			if b.CanUseSharedBuffers() {
				t.Error("broker claims support despite broken allocator")
			}
			if buf := b.CreateScalarBuffer(8, 8); buf != nil {
				t.Error("broken broker handed out a buffer")
			}
		})
	}
}

func TestBroker_ProbeRunsOnce(t *testing.T) {
	calls := 0
	b := NewBroker(WithAllocator(countingAllocator{calls: &calls}))

	for range 5 {
		b.CanUseSharedBuffers()
	}
	if calls != 1 {
		t.Errorf("probe allocations = %d, want 1", calls)
	}
}

type countingAllocator struct{ calls *int }

func (a countingAllocator) AllocScalar(n int) ([]float32, error) {
	*a.calls++
	return make([]float32, n), nil
}

func TestBroker_BufferReuse(t *testing.T) {
	b := NewBroker()

	first := b.CreateScalarBuffer(8, 8)
	if first == nil {
		t.Fatal("CreateScalarBuffer returned nil")
	}
	first.Data()[0] = 0.75
	b.Release(first)

	second := b.CreateScalarBuffer(8, 8)
	if second == nil {
		t.Fatal("CreateScalarBuffer returned nil after release")
	}
	if second != first {
		t.Skip("pool did not reuse the buffer; nothing to assert")
	}
	if second.Width() != 8 || second.Height() != 8 {
		t.Errorf("reused buffer dims = %dx%d, want 8x8", second.Width(), second.Height())
	}
}

func TestBroker_ReleaseNil(t *testing.T) {
	b := NewBroker()
	b.Release(nil) // must not panic

	var nilBroker *Broker
	if nilBroker.CanUseSharedBuffers() {
		t.Error("nil broker claims support")
	}
	nilBroker.Release(nil)
}

func TestBroker_InvalidDimensions(t *testing.T) {
	b := NewBroker()
	if buf := b.CreateScalarBuffer(0, 8); buf != nil {
		t.Error("zero-width buffer allocated")
	}
	if buf := b.CreateScalarBuffer(8, -1); buf != nil {
		t.Error("negative-height buffer allocated")
	}
}

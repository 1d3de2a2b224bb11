package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/gogpu/fractal/compute"
)

// DefaultMaxFrames is the default frame-cache capacity.
const DefaultMaxFrames = 20

// Resource is a cached renderable produced by the caller's factory. The
// cache only stores and destroys it; how drawing happens is none of its
// business.
type Resource interface {
	// Destroy releases the resource's backing storage. Called exactly
	// once per cached resource, on eviction or Clear.
	Destroy()
}

// aliveChecker is an optional Resource interface. Resources that can be
// invalidated externally (a lost GPU texture, a closed surface) report it
// here so Get treats them as misses.
type aliveChecker interface {
	Alive() bool
}

// Entry is one cached frame.
type Entry struct {
	// Key is the parameter fingerprint the frame was stored under.
	Key string

	// Resource is the renderable result.
	Resource Resource

	// CreatedAt records when the frame finished rendering.
	CreatedAt time.Time
}

// Frames is the bounded frame cache. Its size never exceeds the
// configured capacity: an insert at capacity evicts exactly one entry,
// the oldest by insertion order, destroying that entry's resource before
// the new one is stored.
//
// Frames is safe for concurrent use.
type Frames struct {
	mu      sync.Mutex
	max     int
	entries map[string]*frameEntry
	order   fifoList

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

type frameEntry struct {
	entry Entry
	node  *fifoNode
}

// NewFrames creates a frame cache holding at most max entries.
// If max is not positive, DefaultMaxFrames is used.
func NewFrames(max int) *Frames {
	if max <= 0 {
		max = DefaultMaxFrames
	}
	f := &Frames{
		max:     max,
		entries: make(map[string]*frameEntry, max),
	}

	meter := otel.Meter("github.com/gogpu/fractal/cache")
	var err error
	f.hits, err = meter.Int64Counter("fractal.cache.hits",
		metric.WithDescription("Frame cache hits"), metric.WithUnit("{lookup}"))
	if err != nil {
		f.hits = nil
	}
	f.misses, err = meter.Int64Counter("fractal.cache.misses",
		metric.WithDescription("Frame cache misses"), metric.WithUnit("{lookup}"))
	if err != nil {
		f.misses = nil
	}
	return f
}

// Get returns the cached frame for the view, or nil when the key cannot
// be built, nothing is cached, or the cached resource is no longer alive.
// Get never fails; a nil result just means "render it".
func (f *Frames) Get(d Display, t compute.FractalType, p compute.ViewParams) *Entry {
	key, ok := Key(d, t, p)
	if !ok {
		return nil
	}

	f.mu.Lock()
	fe, found := f.entries[key]
	if found {
		if ac, checks := fe.entry.Resource.(aliveChecker); checks && !ac.Alive() {
			// Resource was invalidated behind our back; drop the entry.
			f.order.Remove(fe.node)
			delete(f.entries, key)
			found = false
		}
	}
	f.mu.Unlock()

	if !found {
		f.countMiss()
		return nil
	}
	f.countHit()
	e := fe.entry
	return &e
}

// Put stores a rendered frame under the view's fingerprint. It reports
// false when the key cannot be built (no display available) or res is
// nil; the frame is then simply not cached. Replacing an existing key
// destroys the previous resource.
func (f *Frames) Put(d Display, t compute.FractalType, p compute.ViewParams, res Resource) bool {
	if res == nil {
		return false
	}
	key, ok := Key(d, t, p)
	if !ok {
		return false
	}

	// Displaced resources are collected under the lock and destroyed
	// after it is released, so a slow or panicking Destroy cannot stall
	// concurrent lookups. The new entry is therefore inserted before the
	// evicted one is actually destroyed.
	var destroy []Resource

	f.mu.Lock()
	if old, exists := f.entries[key]; exists {
		f.order.Remove(old.node)
		delete(f.entries, key)
		destroy = append(destroy, old.entry.Resource)
	}
	for len(f.entries) >= f.max {
		oldest, found := f.order.RemoveOldest()
		if !found {
			break
		}
		if old, exists := f.entries[oldest]; exists {
			delete(f.entries, oldest)
			destroy = append(destroy, old.entry.Resource)
		}
	}
	f.entries[key] = &frameEntry{
		entry: Entry{Key: key, Resource: res, CreatedAt: time.Now()},
		node:  f.order.PushFront(key),
	}
	f.mu.Unlock()

	for _, r := range destroy {
		destroyResource(r)
	}
	return true
}

// Clear destroys and removes every entry.
func (f *Frames) Clear() {
	f.mu.Lock()
	destroy := make([]Resource, 0, len(f.entries))
	for _, fe := range f.entries {
		destroy = append(destroy, fe.entry.Resource)
	}
	f.entries = make(map[string]*frameEntry, f.max)
	f.order.Clear()
	f.mu.Unlock()

	for _, r := range destroy {
		destroyResource(r)
	}
}

// Len returns the number of cached frames.
func (f *Frames) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// destroyResource releases a resource, swallowing panics: a failed
// destroy is logged and must never block inserting the next entry.
func destroyResource(r Resource) {
	defer func() {
		if rec := recover(); rec != nil {
			slogger().Warn("frame resource destroy failed", "recovered", rec)
		}
	}()
	r.Destroy()
}

func (f *Frames) countHit() {
	if f.hits != nil {
		f.hits.Add(context.Background(), 1)
	}
}

func (f *Frames) countMiss() {
	if f.misses != nil {
		f.misses.Add(context.Background(), 1)
	}
}

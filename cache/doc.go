// Package cache maps quantized view-parameter fingerprints to previously
// rendered frame resources, so that revisiting a view (or nudging it by
// less than a visible amount) skips fractal evaluation entirely.
//
// The cache is bounded: inserting beyond capacity evicts exactly one
// entry, the oldest by insertion order, destroying its backing resource
// first. It is designed for a single render pipeline writer, not for
// concurrent population from independent callers, though all operations
// are safe to call concurrently.
package cache

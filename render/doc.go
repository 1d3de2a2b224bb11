// Package render drives progressive frame production for the fractal
// explorer. A view change enters [Scheduler.Render], which consults the
// frame cache first; on a miss it renders a cheap low-quality pass
// immediately, escalates quality on each tick until the target is
// reached, presents every intermediate pass, and caches the final one.
//
// The [Quality] controller closes the feedback loop: observed frame
// times move a quality multiplier between its bounds, and the scheduler
// uses it to scale both the iteration budget and the physical render
// resolution of future frames.
//
// Drawing itself stays behind the [Resource] contract: a caller-supplied
// [ResourceFactory] turns an assembled scalar [Field] into something
// drawable, and the scheduler only calls Draw and Destroy on it.
package render

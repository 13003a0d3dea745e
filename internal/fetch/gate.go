package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many governed fetch calls run at once. A call holds its
// slot for the whole retry loop, cooldowns included, so the width is the
// true ceiling on in-flight work against the site.
type Gate struct {
	sem   *semaphore.Weighted
	width int
}

// NewGate builds a gate of the given width; widths below one are raised to
// one.
func NewGate(width int) *Gate {
	if width < 1 {
		width = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(width)), width: width}
}

// Acquire blocks until a slot is free or ctx ends.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire grabs a slot without blocking.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees a slot taken by Acquire or TryAcquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Width reports the configured ceiling.
func (g *Gate) Width() int {
	return g.width
}

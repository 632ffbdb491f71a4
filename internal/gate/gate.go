// Package gate provides the serialization point every store access passes through.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate admits callers into a critical section. Implementations decide how many
// callers may be inside at once and in which order they enter.
type Gate interface {
	// Do runs fn once the caller is admitted. It returns ctx.Err() without
	// running fn if ctx ends while waiting.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Serial admits exactly one caller at a time, first come first served.
type Serial struct {
	sem *semaphore.Weighted
}

// NewSerial returns a Gate with a single slot.
func NewSerial() *Serial {
	return &Serial{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the only slot.
func (g *Serial) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

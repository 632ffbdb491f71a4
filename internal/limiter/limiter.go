// Package limiter bounds how many connections the backend serves at once.
package limiter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter admits work up to a fixed concurrency.
type Limiter interface {
	// Acquire blocks until a slot is free or ctx ends.
	Acquire(ctx context.Context) error
	// Release frees a slot taken by Acquire.
	Release()
}

// New returns a Limiter with n slots. n <= 0 means unbounded.
func New(n int) Limiter {
	if n <= 0 {
		return unbounded{}
	}
	return &bounded{sem: semaphore.NewWeighted(int64(n))}
}

type unbounded struct{}

func (unbounded) Acquire(ctx context.Context) error { return ctx.Err() }
func (unbounded) Release()                          {}

type bounded struct{ sem *semaphore.Weighted }

func (b *bounded) Acquire(ctx context.Context) error { return b.sem.Acquire(ctx, 1) }
func (b *bounded) Release()                          { b.sem.Release(1) }

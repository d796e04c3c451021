package admission

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyGate is a counting semaphore bounding in-flight tasks.
type ConcurrencyGate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewConcurrencyGate creates a gate admitting at most capacity holders.
func NewConcurrencyGate(capacity int) (*ConcurrencyGate, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &ConcurrencyGate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (g *ConcurrencyGate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// TryAcquire takes a slot only if one is free right now.
func (g *ConcurrencyGate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.inFlight.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (g *ConcurrencyGate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight reports the number of slots currently held.
func (g *ConcurrencyGate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity returns the maximum number of concurrent holders.
func (g *ConcurrencyGate) Capacity() int {
	return g.capacity
}

package extraction

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// offload runs fn on pool and waits for its result or for ctx to end.
// A panic in fn is returned as an error.
func offload[T any](ctx context.Context, pool *ants.Pool, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	var zero T
	done := make(chan result, 1)

	err := pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("extraction panicked: %v", r)}
			}
		}()
		val, err := fn()
		done <- result{val: val, err: err}
	})
	if err != nil {
		return zero, fmt.Errorf("failed to submit extraction work: %w", err)
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}

// Task Manager: a linear sequence driver and a fixed-size worker pool
// draining a shared atomic task index (spec.md §4.7). The teacher has no
// analogue (its file operations are single-threaded); the shape is
// grounded in the `entreya-csvquery` indexer's goroutine-per-sorter plus
// `sync.WaitGroup` join, generalised into a reusable pool over any N
// indexed tasks instead of one goroutine per column.
package ghcatalog

import (
	"sync"
	"sync/atomic"
)

// Sequence runs each routine in order, stopping at the first error.
func Sequence(routines ...func() error) error {
	for _, r := range routines {
		if err := r(); err != nil {
			return err
		}
	}
	return nil
}

// RunPool runs n independently-indexed tasks through a fixed pool of
// workers workers: each worker atomically claims the next unclaimed
// index and calls solver(index) until the index space is exhausted,
// then joins. Workers is clamped to [1, n]. Returns the lowest-indexed
// error encountered, or nil.
func RunPool(n, workers int, solver func(index int) error) error {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	errs := make([]error, n)
	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&next, 1)
				if i >= int64(n) {
					return
				}
				errs[i] = solver(int(i))
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

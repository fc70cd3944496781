// Package concurrency runs per-item work over a slice on the configured number of cores.
package concurrency

import (
	"sync"

	"votevault/pkg/context"
)

// minItemsForParallel is the threshold needed to be eligible for running in parallel.
const minItemsForParallel = 64

// Outcome is the result of running a worker on a single item.
type Outcome[U any] struct {
	Value U
	Err   error
}

func workers(ctx *context.OperationContext, numItems int) int {
	if ctx == nil || ctx.Config == nil || ctx.Config.Cores <= 1 || numItems < minItemsForParallel {
		return 1
	}
	return ctx.Config.Cores
}

// run calls fn(i) for every index on n goroutines. It stops handing out
// indices once stop returns true.
func run(n, numItems int, fn func(i int), stop func() bool) {
	if n == 1 {
		for i := 0; i < numItems; i++ {
			if stop() {
				return
			}
			fn(i)
		}
		return
	}

	jobs := make(chan int, numItems)
	for i := 0; i < numItems; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if stop() {
					continue
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// ForEach executes workerFunc for each item and returns the first error.
// Remaining items are skipped once an error or a cancellation is observed.
func ForEach[T any](ctx *context.OperationContext, items []T, workerFunc func(index int, item T) error) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	stop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil && ctx != nil {
			firstErr = ctx.Err()
		}
		return firstErr != nil
	}
	run(workers(ctx, len(items)), len(items), func(i int) {
		if err := workerFunc(i, items[i]); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}, stop)
	return firstErr
}

// Map executes workerFunc for each item and returns the transformed items in
// input order, or the first error encountered.
func Map[T any, U any](ctx *context.OperationContext, items []T, workerFunc func(item T) (U, error)) ([]U, error) {
	results := make([]U, len(items))
	err := ForEach(ctx, items, func(i int, item T) error {
		res, err := workerFunc(item)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Collect executes workerFunc for every item and keeps each item's outcome,
// including failures, in input order. A failing item does not stop the others.
func Collect[T any, U any](ctx *context.OperationContext, items []T, workerFunc func(item T) (U, error)) ([]Outcome[U], error) {
	outcomes := make([]Outcome[U], len(items))
	run(workers(ctx, len(items)), len(items), func(i int) {
		v, err := workerFunc(items[i])
		outcomes[i] = Outcome[U]{Value: v, Err: err}
	}, func() bool { return ctx != nil && ctx.Err() != nil })
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

package concurrent

import (
	"context"
	"sync"
)

const defaultConcurrency = 10

// Result pairs a value with the error produced for it.
type Result[R any] struct {
	Value R
	Err   error
}

// ParallelMap executes fn on each item with at most maxConcurrency goroutines in
// flight. Results keep the input order; the first error by index is returned.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) ([]R, error) {
	settled := ParallelMapSettled(ctx, items, fn, maxConcurrency)
	if settled == nil {
		return nil, nil
	}
	results := make([]R, len(settled))
	var firstErr error
	for i, r := range settled {
		results[i] = r.Value
		if r.Err != nil && firstErr == nil {
			firstErr = r.Err
		}
	}
	return results, firstErr
}

// ParallelMapSettled is ParallelMap without short-circuiting: every item gets its
// own Result, so callers can keep partial successes.
func ParallelMapSettled[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) []Result[R] {
	if len(items) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}

	results := make([]Result[R], len(items))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}
			if err := ctx.Err(); err != nil {
				results[idx].Err = err
				return
			}
			results[idx].Value, results[idx].Err = fn(ctx, val)
		}(i, item)
	}
	wg.Wait()
	return results
}

// ParallelForEach executes fn on each item in parallel and returns the first error.
func ParallelForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error, maxConcurrency int) error {
	_, err := ParallelMap(ctx, items, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	}, maxConcurrency)
	return err
}

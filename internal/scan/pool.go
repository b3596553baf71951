package scan

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachItem fans tasks over a bounded worker pool. Task errors do not stop
// the pool; each task is responsible for recording its own failure. Only
// context cancellation ends the loop early.
func ForEachItem[T any](ctx context.Context, workers int, items []T, task func(ctx context.Context, item T)) error {
	if workers <= 0 {
		workers = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, item := range items {
		if groupCtx.Err() != nil {
			break
		}
		item := item
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			task(groupCtx, item)
			return nil
		})
	}
	return group.Wait()
}

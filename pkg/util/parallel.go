package util

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fn for every input with at most workerLimit calls in flight.
// A failing item does not stop the others; all errors are joined. Items not yet
// started when ctx is cancelled are skipped.
func Parallel[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if workerLimit <= 0 {
		workerLimit = 1
	}

	var g errgroup.Group
	g.SetLimit(workerLimit)

	errs := make([]error, len(inputs))
	for i, item := range inputs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

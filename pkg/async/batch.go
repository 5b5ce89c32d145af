package async

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// Batch calls fn for every item with at most workers calls in flight and
// returns the errors in item order. A zero timeout means no per-call limit.
// Cancelling ctx does not stop Batch early; calls observe it through their
// own context.
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	results := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = call(ctx, timeout, func(ctx context.Context) error {
				return fn(ctx, item)
			})
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// call runs fn with its own timeout, converting a panic into an error
func call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			err = perr
		}
	}()

	return fn(ctx)
}

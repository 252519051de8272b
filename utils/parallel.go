package utils

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// IndexedWorkFunc does the work for a single index. It must only write state owned by that index.
type IndexedWorkFunc func(ctx context.Context, idx int) error

// ForEachIndexParallel calls work for every index in [0, total) on at most limit goroutines.
// A limit below one means ParallelFactor. The first error cancels the context passed to the
// remaining work and is returned; a panic in work is converted into an error.
func ForEachIndexParallel(ctx context.Context, total, limit int, work IndexedWorkFunc) error {
	if limit < 1 {
		limit = ParallelFactor
	}
	if limit > total {
		limit = total
	}
	if total == 0 {
		return nil
	}
	if limit == 1 {
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := callCapturingPanic(ctx, i, work); err != nil {
				return err
			}
		}
		return nil
	}

	// Each goroutine takes a contiguous chunk so the per-index cost can stay small.
	g, gctx := errgroup.WithContext(ctx)
	chunk := (total + limit - 1) / limit
	for from := 0; from < total; from += chunk {
		from := from
		to := from + chunk
		if to > total {
			to = total
		}
		g.Go(func() error {
			for i := from; i < to; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := callCapturingPanic(gctx, i, work); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func callCapturingPanic(ctx context.Context, idx int, work IndexedWorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in parallel work item %d: %v", idx, r)
		}
	}()
	return work(ctx, idx)
}

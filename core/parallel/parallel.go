// Package parallel provides the fork-join helpers and the bounded worker
// pool used by node training, k-means tree building and batch prediction.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Workers resolves a thread setting: values <= 0 mean GOMAXPROCS.
func Workers(threads int) int {
	if threads <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return threads
}

// Ranges splits [0, items) into at most workers contiguous blocks of
// ceil(items/workers) items. Empty blocks are omitted.
func Ranges(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	workers = Workers(workers)
	if workers > items {
		workers = items
	}
	chunkSize := (items + workers - 1) / workers

	ranges := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// Parallelize runs fn over contiguous ranges of [0, items) on GOMAXPROCS
// goroutines and waits for all of them.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(items, 0, fn)
}

// ParallelizeN is Parallelize with an explicit worker count.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	ranges := Ranges(items, workers)
	if len(ranges) == 1 {
		fn(ranges[0][0], ranges[0][1])
		return
	}

	var wg sync.WaitGroup
	for _, r := range ranges {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(r[0], r[1])
	}
	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr runs fn over contiguous ranges and returns the first error.
// A panic inside fn is returned as *errors.PanicError. Every range runs to
// completion; ctx is cancelled for the remaining ranges after a failure so
// that fn can stop early if it checks it.
func ParallelizeErr(ctx context.Context, items, workers int, fn func(ctx context.Context, start, end int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range Ranges(items, workers) {
		s, e := r[0], r[1]
		g.Go(func() (err error) {
			defer errors.Recover(&err, "parallel.range")
			return fn(gctx, s, e)
		})
	}
	return g.Wait()
}

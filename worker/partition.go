package worker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Range is a half-open interval [Start, End) of operation indices assigned to one worker.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Partition splits [0, totalOps) into workers contiguous ranges of totalOps/workers indices each.
// The last range also takes the totalOps%workers remaining indices, so the union of all ranges covers
// [0, totalOps) exactly once.
func Partition(totalOps int, workers int) []Range {
	if workers <= 0 || totalOps < 0 {
		return nil
	}

	rangeSize := totalOps / workers
	ranges := make([]Range, workers)
	for i := range ranges {
		start := i * rangeSize
		ranges[i] = Range{Start: start, End: start + rangeSize}
	}
	ranges[workers-1].End = totalOps

	return ranges
}

// Remainder returns how many indices the last worker receives on top of the even share.
func Remainder(totalOps int, workers int) int {
	if workers <= 0 {
		return 0
	}
	return totalOps % workers
}

// RangeFunc runs the workload of worker id over r.
type RangeFunc func(ctx context.Context, id int, r Range) (*Result, error)

// RunPartitioned partitions totalOps across workers and runs fn once per range, each in its own goroutine.
// It blocks until every worker has returned. A failing worker does not stop the others; all worker
// errors are returned combined. results[i] belongs to worker i and may be nil if that worker failed
// before running.
func RunPartitioned(ctx context.Context, totalOps int, workers int, fn RangeFunc) ([]*Result, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("invalid worker count %d", workers)
	}
	if totalOps < 0 {
		return nil, fmt.Errorf("invalid operation count %d", totalOps)
	}

	ranges := Partition(totalOps, workers)
	results := make([]*Result, len(ranges))
	errs := make([]error, len(ranges))

	var g errgroup.Group
	for id, r := range ranges {
		id, r := id, r
		g.Go(func() error {
			result, err := fn(ctx, id, r)
			results[id] = result
			if err != nil {
				errs[id] = errors.Wrapf(err, "worker %d %s", id, r)
			}
			return errs[id]
		})
	}

	if g.Wait() != nil {
		return results, multierr.Combine(errs...)
	}
	return results, nil
}

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// coverage returns how many times each index in [0, totalOps) is covered by ranges
func coverage(totalOps int, ranges []Range) []int {
	counts := make([]int, totalOps)
	for _, r := range ranges {
		for i := r.Start; i < r.End; i++ {
			counts[i]++
		}
	}
	return counts
}

func TestProperty_PartitionCoversEveryIndexOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ranges are contiguous, disjoint and cover [0, totalOps)", prop.ForAll(
		func(totalOps int, workers int) bool {
			ranges := Partition(totalOps, workers)
			if len(ranges) != workers {
				return false
			}
			next := 0
			for _, r := range ranges {
				if r.Start != next || r.End < r.Start {
					return false
				}
				next = r.End
			}
			if next != totalOps {
				return false
			}
			for _, c := range coverage(totalOps, ranges) {
				if c != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20000),
		gen.IntRange(1, 64),
	))

	properties.Property("even division gives equal ranges", prop.ForAll(
		func(size int, workers int) bool {
			for _, r := range Partition(size*workers, workers) {
				if r.Len() != size {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 500),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

func TestPartitionRemainderGoesToLastWorker(t *testing.T) {
	ranges := Partition(100005, 8)
	require.Len(t, ranges, 8)

	for i := 0; i < 7; i++ {
		assert.Equal(t, 12500, ranges[i].Len(), "worker %d", i)
	}
	assert.Equal(t, Range{Start: 87500, End: 100005}, ranges[7])
	assert.Equal(t, 5, Remainder(100005, 8))

	covered := 0
	for _, c := range coverage(100005, ranges) {
		require.Equal(t, 1, c)
		covered++
	}
	assert.Equal(t, 100005, covered)
}

func TestPartitionMoreWorkersThanOps(t *testing.T) {
	ranges := Partition(3, 5)
	require.Len(t, ranges, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, ranges[i].Len())
	}
	assert.Equal(t, Range{Start: 0, End: 3}, ranges[4])
}

func TestPartitionInvalid(t *testing.T) {
	assert.Nil(t, Partition(10, 0))
	assert.Nil(t, Partition(-1, 2))

	_, err := RunPartitioned(context.Background(), 10, 0, nil)
	assert.Error(t, err)
	_, err = RunPartitioned(context.Background(), -1, 2, nil)
	assert.Error(t, err)
}

func TestRunPartitionedRunsConcurrently(t *testing.T) {
	const workers = 4
	var running atomic.Int32
	var peak atomic.Int32
	barrier := sync.WaitGroup{}
	barrier.Add(workers)

	results, err := RunPartitioned(context.Background(), 40, workers, func(ctx context.Context, id int, r Range) (*Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// every worker must be in flight at the same time to get past this point
		barrier.Done()
		barrier.Wait()
		running.Add(-1)
		return &Result{Worker: id, Range: r}, nil
	})

	require.NoError(t, err)
	require.Len(t, results, workers)
	assert.Equal(t, int32(workers), peak.Load())
	for i, r := range results {
		assert.Equal(t, i, r.Worker)
		assert.Equal(t, Range{Start: i * 10, End: (i + 1) * 10}, r.Range)
	}
}

func TestRunPartitionedWaitsForAllWorkersAndReportsEveryError(t *testing.T) {
	var finished atomic.Int32

	results, err := RunPartitioned(context.Background(), 8, 4, func(ctx context.Context, id int, r Range) (*Result, error) {
		if id%2 == 0 {
			return nil, errors.New("connection refused")
		}
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return &Result{Worker: id, Range: r}, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker 0 [0, 2)")
	assert.Contains(t, err.Error(), "worker 2 [4, 6)")
	assert.Equal(t, int32(2), finished.Load())
	assert.Nil(t, results[0])
	assert.NotNil(t, results[1])
	assert.NotNil(t, results[3])
}

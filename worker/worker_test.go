package worker

import (
	"context"
	"testing"

	"crudbench/benchmark/engines/memory"
	"crudbench/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T, config string) *memory.Memory {
	m, err := memory.New([]byte(config))
	require.NoError(t, err)
	return m
}

func newData(t *testing.T, count int) *dataset.Dataset {
	d, err := dataset.New(count)
	require.NoError(t, err)
	return d
}

func runWorker(t *testing.T, m *memory.Memory, data *dataset.Dataset, r Range, options Options) *Result {
	backend, err := m.Prepare(context.Background())
	require.NoError(t, err)
	defer backend.Close()
	return NewWorker(0, backend, data, options).Run(context.Background(), r)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "Insert", Insert.String())
	assert.Equal(t, "Read", Read.String())
	assert.Equal(t, "Update", Update.String())
	assert.Equal(t, "Delete", Delete.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

func TestParseErrorPolicy(t *testing.T) {
	for in, want := range map[string]ErrorPolicy{"": ContinueOnError, "continue": ContinueOnError, "abort": AbortOnError} {
		got, err := ParseErrorPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseErrorPolicy("retry")
	assert.Error(t, err)
}

func TestRunSingleThreadSample(t *testing.T) {
	m := newMemory(t, "")
	data := newData(t, 10000)

	result := runWorker(t, m, data, Range{0, 10000}, Options{Verify: true})

	require.False(t, result.Failed(), "%v", result.Err())
	require.NoError(t, result.Err())
	require.Len(t, result.Phases, 4)
	for i, p := range result.Phases {
		assert.Equal(t, Phases[i], p.Phase)
		assert.Equal(t, 10000, p.Ops)
		assert.Zero(t, p.Errors)
		assert.False(t, p.Aborted)
		assert.Positive(t, p.Duration)
	}

	assert.Equal(t, 10000, m.Touched())
	assert.Equal(t, int64(10000), m.Stats.Inserts.Load())
	assert.Equal(t, int64(10000), m.Stats.Updates.Load())
	assert.Equal(t, int64(10000), m.Stats.Deletes.Load())
	assert.Equal(t, int64(1), m.MaxInsertsPerKey())
	assert.Equal(t, 0, m.Len())
}

func TestReadObservesEveryInsertedKey(t *testing.T) {
	m := newMemory(t, "")
	data := newData(t, 100)

	result := runWorker(t, m, data, Range{0, 100}, Options{})

	assert.Zero(t, result.Phases[Read].Misses)
	assert.Equal(t, 100, result.Phases[Read].Ops)
}

func TestUpdateWritesSyntheticValue(t *testing.T) {
	m := newMemory(t, "failDeleteAt: 1")
	data := newData(t, 3)

	result := runWorker(t, m, data, Range{0, 3}, Options{OnError: AbortOnError})

	// the delete phase stopped on its first call, so the updated values are still there
	require.True(t, result.Phases[Delete].Aborted)
	for i := 0; i < 3; i++ {
		v, ok := m.Get(dataset.Key(i))
		require.True(t, ok)
		assert.Equal(t, dataset.UpdatedValue(i), v)
	}
}

func TestDeleteLeavesNoKeys(t *testing.T) {
	m := newMemory(t, "")
	data := newData(t, 50)

	result := runWorker(t, m, data, Range{10, 50}, Options{Verify: true})

	assert.True(t, result.Verified)
	assert.Zero(t, result.Residual)
	for i := 10; i < 50; i++ {
		_, ok := m.Get(dataset.Key(i))
		assert.False(t, ok)
	}
}

func TestFailedWriteIsCountedAndReported(t *testing.T) {
	m := newMemory(t, "failWriteAt: 5")
	data := newData(t, 10)

	result := runWorker(t, m, data, Range{0, 10}, Options{})

	require.True(t, result.Failed())
	insert := result.Phases[Insert]
	assert.Equal(t, 10, insert.Ops)
	assert.Equal(t, 1, insert.Errors)
	assert.False(t, insert.Aborted)
	require.Error(t, insert.Err)
	assert.ErrorIs(t, insert.Err, memory.ErrInjected)
	assert.Contains(t, insert.Err.Error(), "Insert key4")

	// key4 was never written, so its read misses
	assert.Equal(t, 1, result.Phases[Read].Misses)
	assert.Equal(t, 1, result.Errors())
	assert.ErrorIs(t, result.Err(), memory.ErrInjected)
}

func TestAbortOnErrorStopsThePhase(t *testing.T) {
	m := newMemory(t, "failWriteAt: 5")
	data := newData(t, 10)

	result := runWorker(t, m, data, Range{0, 10}, Options{OnError: AbortOnError})

	require.True(t, result.Failed())
	insert := result.Phases[Insert]
	assert.True(t, insert.Aborted)
	assert.Equal(t, 5, insert.Ops)
	assert.Equal(t, 1, insert.Errors)
	assert.Equal(t, int64(5), m.Stats.Inserts.Load())

	// later phases still run over the whole range
	assert.Equal(t, 10, result.Phases[Read].Ops)
	assert.Equal(t, 6, result.Phases[Read].Misses)
	assert.Equal(t, 10, result.Phases[Delete].Ops)
}

func TestVerifyReportsResidualKeys(t *testing.T) {
	m := newMemory(t, "failDeleteAt: 2")
	data := newData(t, 4)

	result := runWorker(t, m, data, Range{0, 4}, Options{Verify: true})

	assert.Equal(t, 1, result.Residual)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Err().Error(), "1 keys left after delete")
}

func TestCancelledContextAbortsRemainingPhases(t *testing.T) {
	m := newMemory(t, "")
	data := newData(t, 10)
	backend, err := m.Prepare(context.Background())
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := NewWorker(1, backend, data, Options{}).Run(ctx, Range{0, 10})

	for _, p := range result.Phases {
		assert.True(t, p.Aborted)
		assert.Zero(t, p.Ops)
		assert.ErrorIs(t, p.Err, context.Canceled)
	}
	assert.Error(t, result.Err())
}

// acknowledges every write without storing it
type droppingBackend struct{}

func (droppingBackend) Write(ctx context.Context, key string, value string) error { return nil }
func (droppingBackend) Read(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (droppingBackend) Delete(ctx context.Context, key string) error { return nil }
func (droppingBackend) Close() error                                 { return nil }

func TestLostWritesFailTheRun(t *testing.T) {
	data := newData(t, 10)

	result := NewWorker(0, droppingBackend{}, data, Options{Verify: true}).Run(context.Background(), Range{0, 10})

	assert.Zero(t, result.Errors())
	assert.Equal(t, 10, result.Phases[Read].Misses)
	assert.Zero(t, result.Residual)
	require.True(t, result.Failed())
	assert.ErrorContains(t, result.Err(), "Read: 10 of 10 keys missing after insert")
}

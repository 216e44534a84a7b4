// Package enginetest is a conformance suite every benchmark engine has to pass.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	engine "crudbench/benchmark/engines/abstract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, not yet set up engine
type Factory func(t *testing.T) engine.Engine

// RunEngineTests runs the suite against the engines built by factory.
func RunEngineTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("WriteReadDelete", func(t *testing.T) {
			testWriteReadDelete(t, setup(t, factory))
		})

		t.Run("ReadMissing", func(t *testing.T) {
			testReadMissing(t, setup(t, factory))
		})

		t.Run("InsertUpdate", func(t *testing.T) {
			testInsertUpdate(t, setup(t, factory))
		})

		t.Run("Cleanup", func(t *testing.T) {
			testCleanup(t, setup(t, factory))
		})

		t.Run("ConcurrentSessions", func(t *testing.T) {
			testConcurrentSessions(t, setup(t, factory))
		})

		t.Run("Configs", func(t *testing.T) {
			e := factory(t)
			assert.NotEmpty(t, e.Name())
			assert.NotEmpty(t, e.GetConfigs()["engine"])
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func setup(t *testing.T, factory Factory) engine.Engine {
	e := factory(t)
	ctx := context.Background()
	require.NoError(t, e.Setup(ctx))
	t.Cleanup(func() { assert.NoError(t, e.Finalize()) })
	require.NoError(t, e.Cleanup(ctx))
	return e
}

func session(t *testing.T, e engine.Engine) engine.Backend {
	backend, err := e.Prepare(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, backend.Close()) })
	return backend
}

func requireValue(t *testing.T, backend engine.Backend, key string, want string) {
	value, found, err := backend.Read(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found, "key %s", key)
	require.Equal(t, want, value)
}

func requireMissing(t *testing.T, backend engine.Backend, key string) {
	_, found, err := backend.Read(context.Background(), key)
	require.NoError(t, err)
	require.False(t, found, "key %s", key)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteReadDelete(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	backend := session(t, e)

	require.NoError(t, backend.Write(ctx, "key1", "v1"))
	requireValue(t, backend, "key1", "v1")

	// a second write replaces the value
	require.NoError(t, backend.Write(ctx, "key1", "v2"))
	requireValue(t, backend, "key1", "v2")

	require.NoError(t, backend.Delete(ctx, "key1"))
	requireMissing(t, backend, "key1")
}

func testReadMissing(t *testing.T, e engine.Engine) {
	backend := session(t, e)
	requireMissing(t, backend, "never-written")
	// deleting an absent key is not an error
	require.NoError(t, backend.Delete(context.Background(), "never-written"))
}

func testInsertUpdate(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	backend := session(t, e)

	if inserter, ok := backend.(engine.Inserter); ok {
		require.NoError(t, inserter.Insert(ctx, "key2", "inserted"))
	} else {
		require.NoError(t, backend.Write(ctx, "key2", "inserted"))
	}
	requireValue(t, backend, "key2", "inserted")

	if updater, ok := backend.(engine.Updater); ok {
		require.NoError(t, updater.Update(ctx, "key2", "updated_value2"))
	} else {
		require.NoError(t, backend.Write(ctx, "key2", "updated_value2"))
	}
	requireValue(t, backend, "key2", "updated_value2")
}

func testCleanup(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	sizer, ok := e.(engine.Sizer)
	if !ok {
		t.Skip("engine cannot count its records")
	}

	backend, err := e.Prepare(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, backend.Write(ctx, fmt.Sprintf("key%d", i), "v"))
	}
	n, err := sizer.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// sessions never outlive a run, the next run's cleanup happens after they are closed
	require.NoError(t, backend.Close())
	require.NoError(t, e.Cleanup(ctx))
	n, err = sizer.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testConcurrentSessions(t *testing.T, e engine.Engine) {
	const workers = 4
	const perWorker = 25
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			backend, err := e.Prepare(ctx)
			if err != nil {
				errs[w] = err
				return
			}
			defer backend.Close()
			for i := w * perWorker; i < (w+1)*perWorker; i++ {
				if err := backend.Write(ctx, fmt.Sprintf("ckey%d", i), fmt.Sprintf("v%d", i)); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	backend := session(t, e)
	for i := 0; i < workers*perWorker; i++ {
		requireValue(t, backend, fmt.Sprintf("ckey%d", i), fmt.Sprintf("v%d", i))
		require.NoError(t, backend.Delete(ctx, fmt.Sprintf("ckey%d", i)))
	}
}

package riak_engine

import (
	"os"
	"testing"

	engine "crudbench/benchmark/engines/abstract"
	"crudbench/benchmark/engines/enginetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiakEngine(t *testing.T) {
	addr := os.Getenv("CRUDBENCH_RIAK_ADDR")
	if addr == "" {
		t.Skip("CRUDBENCH_RIAK_ADDR not set")
	}
	enginetest.RunEngineTests(t, "riak", func(t *testing.T) engine.Engine {
		r, err := New([]byte("connection: [\"" + addr + "\"]\n"))
		require.NoError(t, err)
		return r
	})
}

func TestConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorContains(t, err, "missing connection")

	r, err := New([]byte("connection: [\"a:8087\", \"b:8087\"]\nbucket: kv\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:8087", "b:8087"}, r.Connection)
	assert.Equal(t, "default", r.BucketType)
	assert.Equal(t, "kv", r.Bucket)
}

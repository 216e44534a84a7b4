package postgres

import (
	"os"
	"testing"

	engine "crudbench/benchmark/engines/abstract"
	"crudbench/benchmark/engines/enginetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEngine(t *testing.T) {
	dsn := os.Getenv("CRUDBENCH_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRUDBENCH_POSTGRES_DSN not set")
	}
	enginetest.RunEngineTests(t, "postgres", func(t *testing.T) engine.Engine {
		p, err := New([]byte("connection: " + dsn + "\nmaxOpenConns: 8\n"))
		require.NoError(t, err)
		return p
	})
}

func TestConfig(t *testing.T) {
	_, err := New([]byte("table: x"))
	assert.ErrorContains(t, err, "missing connection")

	p, err := New([]byte("connection: postgres://localhost/bench\n"))
	require.NoError(t, err)
	assert.Equal(t, 100, p.MaxOpenConns)
	assert.Equal(t, "update benchmark_table_77 set value = $2, changed_at = $3 where key = $1", p.queries.Update)
}

func TestReserveSessionsGrowsThePool(t *testing.T) {
	p, err := New([]byte("connection: postgres://localhost/bench\nmaxOpenConns: 8\n"))
	require.NoError(t, err)

	p.ReserveSessions(4)
	assert.Equal(t, 8, p.MaxOpenConns)

	p.ReserveSessions(150)
	assert.Equal(t, 150, p.MaxOpenConns)
	assert.Equal(t, "150", p.GetConfigs()["maxOpenConns"])
}

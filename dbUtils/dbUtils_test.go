package dbutils

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(prefix string) func(int) string {
	return func(n int) string { return prefix + strconv.Itoa(n) }
}

func TestNewQueries(t *testing.T) {
	q := NewQueries("t", numbered("$"))
	assert.Equal(t, "insert into t (key, value, changed_at) values ($1, $2, $3)", q.Insert)
	assert.Equal(t, "select value from t where key = $1", q.Select)
	assert.Equal(t, "update t set value = $2, changed_at = $3 where key = $1", q.Update)
	assert.Contains(t, q.Upsert, "on conflict (key) do update")
	assert.Equal(t, "delete from t where key = $1", q.Delete)
}

func TestSessionAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RecreateTable(ctx, db, Table, false))
	s, err := NewSession(ctx, db, "sqlite", NewQueries(Table, numbered("?")))
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "key0", "a"))
	assert.Error(t, s.Insert(ctx, "key0", "a"), "duplicate insert")
	require.NoError(t, s.Update(ctx, "key0", "b"))
	// the update of a key that was never inserted fails like its insert did
	err = s.Update(ctx, "key9", "x")
	assert.ErrorIs(t, err, ErrNoRow)
	assert.ErrorContains(t, err, "sqlite update key9")
	require.NoError(t, s.Write(ctx, "key1", "c"))
	require.NoError(t, s.Write(ctx, "key1", "d"))

	v, found, err := s.Read(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "d", v)

	n, err := TableRows(ctx, db, Table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Delete(ctx, "key0"))
	_, found, err = s.Read(ctx, "key0")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, s.Close())

	// recreating drops the rows
	require.NoError(t, RecreateTable(ctx, db, Table, false))
	n, err = TableRows(ctx, db, Table)
	require.NoError(t, err)
	assert.Zero(t, n)
}

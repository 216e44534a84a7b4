package dbutils

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// Default benchmark table. The suffix is there to avoid clobbering a real table by accident.
const Table = "benchmark_table_77"

// SQL text used by a Session. Every statement takes (key, value, changed_at) in that order where it
// takes arguments at all.
type Queries struct {
	Insert string
	Select string
	Update string
	Upsert string
	Delete string
}

// Builds the statements for table, placeholder(n) being the dialect's n-th (1-based) parameter
func NewQueries(table string, placeholder func(n int) string) Queries {
	p1, p2, p3 := placeholder(1), placeholder(2), placeholder(3)
	return Queries{
		Insert: fmt.Sprintf("insert into %s (key, value, changed_at) values (%s, %s, %s)", table, p1, p2, p3),
		Select: fmt.Sprintf("select value from %s where key = %s", table, p1),
		Update: fmt.Sprintf("update %s set value = %s, changed_at = %s where key = %s", table, p2, p3, p1),
		Upsert: fmt.Sprintf(`insert into %s (key, value, changed_at) values (%s, %s, %s)
			on conflict (key) do update set value = excluded.value, changed_at = excluded.changed_at`,
			table, p1, p2, p3),
		Delete: fmt.Sprintf("delete from %s where key = %s", table, p1),
	}
}

// Drops and creates the benchmark table. On Postgres the table is unlogged.
func RecreateTable(ctx context.Context, db *sql.DB, table string, postgres bool) error {
	create, timestamp := "create table", "timestamp"
	if postgres {
		create, timestamp = "create unlogged table", "timestamptz"
	}

	statements := []string{
		"drop table if exists " + table,
		// changed_at mirrors what a cache-expiration column would cost in a real table
		fmt.Sprintf(`%s %s (
			key         text primary key not null,
			value       text not null,
			changed_at  %s null
		)`, create, table, timestamp),
	}

	for _, s := range statements {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return errors.Wrapf(err, "recreate %s", table)
		}
	}
	return nil
}

// Vacuums and checkpoints a Postgres database
func VacuumAndCheckpoint(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "vacuum analyze"); err != nil {
		return errors.Wrap(err, "vacuum")
	}
	if _, err := db.ExecContext(ctx, "checkpoint"); err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	return nil
}

// Returns the number of rows in table
func TableRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "select count(*) from "+table).Scan(&n)
	return n, errors.Wrapf(err, "count %s", table)
}

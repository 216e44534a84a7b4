package sqlite

import (
	"context"
	"database/sql"
	"strconv"

	engine "crudbench/benchmark/engines/abstract"
	dbutils "crudbench/dbUtils"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SQLite runs the workload against an embedded database file. Concurrent writers serialize on the
// database lock, so the busy timeout has to cover the longest wait of a multi-threaded run.
type SQLite struct {
	Path          string `yaml:"path"`
	Table         string `yaml:"table"`
	BusyTimeoutMs int    `yaml:"busyTimeoutMs"`
	JournalMode   string `yaml:"journalMode"`
	db            *sql.DB
	queries       dbutils.Queries
}

func New(configData []byte) (*SQLite, error) {
	s := SQLite{Table: dbutils.Table, BusyTimeoutMs: 30000, JournalMode: "WAL"}
	if err := yaml.Unmarshal(configData, &s); err != nil {
		return nil, errors.Wrap(err, "sqlite: invalid config")
	}
	if s.Path == "" {
		return nil, errors.New("sqlite: missing path")
	}
	s.queries = dbutils.NewQueries(s.Table, func(n int) string { return "?" + strconv.Itoa(n) })
	return &s, nil
}

func (s *SQLite) Name() string {
	return "SQLite"
}

func (s *SQLite) dsn() string {
	return "file:" + s.Path + "?_busy_timeout=" + strconv.Itoa(s.BusyTimeoutMs) + "&_journal_mode=" + s.JournalMode
}

func (s *SQLite) Setup(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return errors.Wrap(err, "sqlite: open")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, "sqlite: connect")
	}
	s.db = db
	return nil
}

func (s *SQLite) Cleanup(ctx context.Context) error {
	return errors.Wrap(dbutils.RecreateTable(ctx, s.db, s.Table, false), "sqlite")
}

func (s *SQLite) Prepare(ctx context.Context) (engine.Backend, error) {
	session, err := dbutils.NewSession(ctx, s.db, "sqlite", s.queries)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLite) Size(ctx context.Context) (int64, error) {
	return dbutils.TableRows(ctx, s.db, s.Table)
}

func (s *SQLite) GetConfigs() map[string]string {
	return map[string]string{
		"engine":      "sqlite",
		"table":       s.Table,
		"journalMode": s.JournalMode,
	}
}

func (s *SQLite) Finalize() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

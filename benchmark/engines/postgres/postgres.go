package postgres

import (
	"context"
	"database/sql"
	"strconv"

	engine "crudbench/benchmark/engines/abstract"
	dbutils "crudbench/dbUtils"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Postgres struct {
	Connection   string `yaml:"connection"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	Vacuum       bool   `yaml:"vacuum"`
	db           *sql.DB
	queries      dbutils.Queries
}

func New(configData []byte) (*Postgres, error) {
	p := Postgres{Table: dbutils.Table, MaxOpenConns: 100}
	if err := yaml.Unmarshal(configData, &p); err != nil {
		return nil, errors.Wrap(err, "postgres: invalid config")
	}
	if p.Connection == "" {
		return nil, errors.New("postgres: missing connection")
	}
	p.queries = dbutils.NewQueries(p.Table, func(n int) string { return "$" + strconv.Itoa(n) })
	return &p, nil
}

func (p *Postgres) Name() string {
	return "PostgreSQL"
}

func (p *Postgres) Setup(ctx context.Context) error {
	db, err := sql.Open("postgres", p.Connection)
	if err != nil {
		return errors.Wrap(err, "postgres: open")
	}
	db.SetMaxOpenConns(p.MaxOpenConns)
	// the number of idle connections should be the same as the number of open connections.
	// otherwise connections are constantly closed and reopened whenever a worker is momentarily idle.
	db.SetMaxIdleConns(p.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, "postgres: connect")
	}
	p.db = db
	return nil
}

func (p *Postgres) Cleanup(ctx context.Context) error {
	if err := dbutils.RecreateTable(ctx, p.db, p.Table, true); err != nil {
		return errors.Wrap(err, "postgres")
	}
	if p.Vacuum {
		// checkpoint needs superuser rights; a failure only costs measurement noise
		if err := dbutils.VacuumAndCheckpoint(ctx, p.db); err != nil {
			zlog.Warn().Err(err).Str("backend", p.Name()).Msg("Vacuum failed")
		}
	}
	return nil
}

func (p *Postgres) Prepare(ctx context.Context) (engine.Backend, error) {
	session, err := dbutils.NewSession(ctx, p.db, "postgres", p.queries)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Every session holds one connection for a whole run, so the pool must be at least as large as the
// number of workers.
func (p *Postgres) ReserveSessions(n int) {
	if n <= p.MaxOpenConns {
		return
	}
	zlog.Info().Str("backend", p.Name()).Int("maxOpenConns", p.MaxOpenConns).Int("workers", n).
		Msg("Growing the connection pool to one connection per worker")
	p.MaxOpenConns = n
	if p.db != nil {
		p.db.SetMaxOpenConns(n)
		p.db.SetMaxIdleConns(n)
	}
}

func (p *Postgres) Size(ctx context.Context) (int64, error) {
	return dbutils.TableRows(ctx, p.db, p.Table)
}

func (p *Postgres) GetConfigs() map[string]string {
	return map[string]string{
		"engine":       "postgres",
		"table":        p.Table,
		"maxOpenConns": strconv.Itoa(p.MaxOpenConns),
	}
}

func (p *Postgres) Finalize() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

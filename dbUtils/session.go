package dbutils

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrNoRow is returned when a statement expected to touch one row touched none.
var ErrNoRow = errors.New("no row for key")

// Session is a benchmark session pinned to one connection of a pool, with its statements prepared on that
// connection. It implements the engine Backend, Inserter and Updater interfaces.
type Session struct {
	name       string
	conn       *sql.Conn
	insertStmt *sql.Stmt
	selectStmt *sql.Stmt
	updateStmt *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

func NewSession(ctx context.Context, db *sql.DB, name string, q Queries) (*Session, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: connect", name)
	}

	s := &Session{name: name, conn: conn}
	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = conn.PrepareContext(ctx, query)
	}
	prepare(&s.insertStmt, q.Insert)
	prepare(&s.selectStmt, q.Select)
	prepare(&s.updateStmt, q.Update)
	prepare(&s.upsertStmt, q.Upsert)
	prepare(&s.deleteStmt, q.Delete)

	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "%s: prepare", name)
	}
	return s, nil
}

func (s *Session) exec(ctx context.Context, stmt *sql.Stmt, op string, args ...any) error {
	_, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return errors.Wrapf(err, "%s %s", s.name, op)
	}
	return nil
}

func (s *Session) Insert(ctx context.Context, key string, value string) error {
	return s.exec(ctx, s.insertStmt, "insert", key, value, time.Now().UTC())
}

// Update fails with ErrNoRow when key does not exist, e.g. because its insert failed
func (s *Session) Update(ctx context.Context, key string, value string) error {
	res, err := s.updateStmt.ExecContext(ctx, key, value, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "%s update", s.name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%s update", s.name)
	}
	if n == 0 {
		return errors.Wrapf(ErrNoRow, "%s update %s", s.name, key)
	}
	return nil
}

func (s *Session) Write(ctx context.Context, key string, value string) error {
	return s.exec(ctx, s.upsertStmt, "upsert", key, value, time.Now().UTC())
}

func (s *Session) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.selectStmt.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrapf(err, "%s select", s.name)
	}
	return value, true, nil
}

func (s *Session) Delete(ctx context.Context, key string) error {
	return s.exec(ctx, s.deleteStmt, "delete", key)
}

func (s *Session) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.selectStmt, s.updateStmt, s.upsertStmt, s.deleteStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.conn.Close()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same query code
// serves plain reads and transactional work.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement of the MySQL store.  It is embedded in
// MySQLStore (bound to the pool) and mysqlTx (bound to a transaction).
type queries struct {
	db dbtx
}

// MySQLStore is the production Store.  Every guarded update is a single
// conditional UPDATE so InnoDB row locks make concurrent callers queue on
// the affected row and re-evaluate the guard against the committed value.
//
// The DSN must set clientFoundRows=true: RowsAffected then reports matched
// rows, which the guarded updates rely on.
type MySQLStore struct {
	queries
	db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the given pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{queries: queries{db: db}, db: db}
}

// DB exposes the underlying pool, e.g. for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// WithTx runs fn inside a transaction.  The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&mysqlTx{queries: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type mysqlTx struct {
	queries
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/storage/database"
)

// repo holds what every repository needs: the default executor, overridable per call with a transaction.
type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return exec.GetContext(ctx, dest, exec.Rebind(query), args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return exec.SelectContext(ctx, dest, exec.Rebind(query), args...)
}

func execute(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	return exec.ExecContext(ctx, exec.Rebind(query), args...)
}

// insert runs a named insert, mapping constraint violations to core.ErrConflict.
func insert(ctx context.Context, exec core.DBExecutor, query string, arg interface{}, msg string) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, query, arg); err != nil {
		if database.IsUniqueViolation(err) {
			return core.ErrConflict
		}
		return errors.Wrap(err, msg)
	}
	return nil
}

// expectOne maps a conditional update that touched no row to core.ErrConflict.
func expectOne(res sql.Result, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

// trapNoRows maps "no rows" to the domain's not found error.
func trapNoRows(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

package store

import (
	"context"
	"database/sql"
	"strings"
)

// stubDB satisfies every query interface in this package. Unset funcs
// succeed without touching dest.
type stubDB struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
	execFn   func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type (
	stubTx     = stubDB
	stubExecer = stubDB
	stubGetter = stubDB
)

func (s stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

func (s stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

func (s stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.execFn == nil {
		return stubResult{rows: 1}, nil
	}
	return s.execFn(ctx, query, args...)
}

// execLog records statements passed to ExecContext.
type execLog struct {
	queries []string
	args    [][]any
}

func (l *execLog) exec(_ context.Context, query string, args ...any) (sql.Result, error) {
	l.queries = append(l.queries, strings.Join(strings.Fields(query), " "))
	l.args = append(l.args, args)
	return stubResult{rows: 1}, nil
}

type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) {
	return 0, r.err
}

func (r stubResult) RowsAffected() (int64, error) {
	return r.rows, r.err
}

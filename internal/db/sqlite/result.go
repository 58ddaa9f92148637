package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorKind classifies store failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConstraint
	KindBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConstraint:
		return "constraint"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ErrNotFound matches any *Error of kind KindNotFound via errors.Is.
var ErrNotFound = errors.New("not found")

// Error is the uniform failure returned by the access layer.
type Error struct {
	Err  error
	Op   string
	Kind ErrorKind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match not-found failures.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// ExecResult is the outcome of a write.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// RowScanner is implemented by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// Exec runs a write and reports rows affected and the last insert id.
func Exec(ctx context.Context, q Querier, query string, args ...interface{}) (ExecResult, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, wrap("exec", err)
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

// QueryOne runs a single-row query. A missing row yields an error matching
// ErrNotFound.
func QueryOne[T any](ctx context.Context, q Querier, scan func(RowScanner) (T, error), query string, args ...interface{}) (T, error) {
	v, err := scan(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		return zero, wrap("query one", err)
	}
	return v, nil
}

// QueryMany runs a query and scans every row. Rows are fully drained before
// returning so the single connection is free for the next statement.
func QueryMany[T any](ctx context.Context, q Querier, scan func(RowScanner) (T, error), query string, args ...interface{}) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("query", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, wrap("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("rows", err)
	}
	return out, nil
}

// wrap converts a driver error into an *Error. Already-wrapped errors pass through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}
	var de *msqlite.Error
	if errors.As(err, &de) {
		switch de.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return KindConstraint
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return KindBusy
		}
	}
	return KindUnknown
}

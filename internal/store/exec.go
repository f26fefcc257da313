package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
)

// Row is one result row, values as returned by the driver: int64,
// float64, string, []byte or nil.
type Row []any

// Result is the outcome of one statement. Rows and Columns are set for
// queries; LastInsertID and RowsAffected for writes.
type Result struct {
	Columns      []string
	Rows         []Row
	LastInsertID int64
	RowsAffected int64
}

// Tx runs statements. Both *DB (autocommit) and the handle passed to a
// Transaction callback implement it. Inside a callback use only the
// handle: the pool's single connection is held by the transaction.
type Tx interface {
	ExecuteSQL(ctx context.Context, query string, params ...any) (*Result, error)
}

// execer is the part of *sql.DB and *sql.Tx ExecuteSQL needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type tx struct {
	d  *DB
	tx *sql.Tx
}

func (t *tx) ExecuteSQL(ctx context.Context, query string, params ...any) (*Result, error) {
	return t.d.execute(ctx, t.tx, query, params)
}

// ExecuteSQL runs one statement outside any transaction.
func (d *DB) ExecuteSQL(ctx context.Context, query string, params ...any) (*Result, error) {
	return d.execute(ctx, d.db, query, params)
}

// Transaction runs fn inside one transaction. It commits when fn returns
// nil and rolls back otherwise, returning fn's error unchanged.
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(ctx, &tx{d: d, tx: sqlTx}); err != nil {
		d.metrics.transaction("rollback")
		slog.Debug("transaction rolled back", "error", err)
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		d.metrics.transaction("error")
		return &StorageError{Op: "commit", Err: err}
	}
	d.metrics.transaction("commit")
	return nil
}

func (d *DB) execute(ctx context.Context, ex execer, query string, params []any) (*Result, error) {
	kind := statementKind(query)
	start := time.Now()
	slog.Debug("execute statement", "kind", kind, "sql", query, "params", len(params))

	var res *Result
	var err error
	if kind == "select" || kind == "pragma" {
		res, err = runQuery(ctx, ex, query, params)
	} else {
		res, err = runExec(ctx, ex, query, params)
	}
	d.metrics.statement(kind, err, time.Since(start))
	return res, err
}

func runQuery(ctx context.Context, ex execer, query string, params []any) (*Result, error) {
	rows, err := ex.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, &StorageError{Op: "query", SQL: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &StorageError{Op: "query", SQL: query, Err: err}
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		row := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &StorageError{Op: "query", SQL: query, Err: err}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", SQL: query, Err: err}
	}
	return res, nil
}

func runExec(ctx context.Context, ex execer, query string, params []any) (*Result, error) {
	r, err := ex.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, &StorageError{Op: "exec", SQL: query, Err: err}
	}
	res := &Result{}
	if res.LastInsertID, err = r.LastInsertId(); err != nil {
		return nil, &StorageError{Op: "exec", SQL: query, Err: err}
	}
	if res.RowsAffected, err = r.RowsAffected(); err != nil {
		return nil, &StorageError{Op: "exec", SQL: query, Err: err}
	}
	return res, nil
}

// statementKind classifies a statement by its first keyword.
func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "other"
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return "select"
	case "INSERT":
		return "insert"
	case "UPDATE":
		return "update"
	case "DELETE":
		return "delete"
	case "CREATE", "DROP", "ALTER":
		return "ddl"
	case "PRAGMA":
		return "pragma"
	}
	return "other"
}

package driver

import "context"

// Row is a single query row. pgx.Row and *sql.Row satisfy it.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a query result set, adapted from pgx.Rows or *sql.Rows.
type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// Executor runs SQL against a pool or a transaction.
type Executor interface {
	// Begin starts a transaction. On an ExecutorTx it opens a savepoint.
	Begin(ctx context.Context) (ExecutorTx, error)

	// Exec returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// ExecutorTx is an open transaction or savepoint.
type ExecutorTx interface {
	Executor

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

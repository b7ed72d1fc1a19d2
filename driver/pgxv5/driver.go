// Package pgxv5 stores conversations and summaries in PostgreSQL through
// pgx/v5.
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	d := pgxv5.New(pool)
//	_ = d.Migrate(ctx)
//	loop, _ := agentloop.New(backends, pipeline, executor, nil, agentloop.WithStore(d.GetStore()))
//
// Nested transactions use savepoints.
package pgxv5

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/agentloop/driver"
)

// Driver implements driver.Driver for pgx/v5.
type Driver struct {
	pool *pgxpool.Pool
}

// New creates a driver over pool.
func New(pool *pgxpool.Pool) *Driver {
	return &Driver{pool: pool}
}

// GetExecutor returns an executor running outside any transaction.
func (d *Driver) GetExecutor() driver.Executor {
	return executor{q: d.pool}
}

// UnwrapExecutor wraps a transaction begun by the caller.
func (d *Driver) UnwrapExecutor(tx pgx.Tx) driver.ExecutorTx {
	return &ExecutorTx{executor: executor{q: tx}, tx: tx}
}

// UnwrapTx returns the pgx.Tx behind execTx.
func (d *Driver) UnwrapTx(execTx driver.ExecutorTx) pgx.Tx {
	return execTx.(*ExecutorTx).tx
}

// Begin starts a transaction.
func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return executor{q: d.pool}.Begin(ctx)
}

// PoolIsSet reports whether a pool was given.
func (d *Driver) PoolIsSet() bool {
	return d.pool != nil
}

// GetStore returns a Store on this driver.
func (d *Driver) GetStore() driver.Store {
	return NewStore(d)
}

// Pool returns the underlying pool.
func (d *Driver) Pool() *pgxpool.Pool {
	return d.pool
}

// Migrate applies driver.Schema.
func (d *Driver) Migrate(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, driver.Schema)
	return err
}

// querier is the part of the API shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type executor struct {
	q querier
}

// Begin starts a transaction, or a savepoint when q is a transaction.
func (e executor) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := e.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &ExecutorTx{executor: executor{q: tx}, tx: tx}, nil
}

func (e executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e executor) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	rows, err := e.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e executor) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return e.q.QueryRow(ctx, sql, args...)
}

// ExecutorTx is an open pgx transaction.
type ExecutorTx struct {
	executor
	tx pgx.Tx
}

// Commit commits the transaction or releases the savepoint.
func (e *ExecutorTx) Commit(ctx context.Context) error {
	return e.tx.Commit(ctx)
}

// Rollback rolls back the transaction or to the savepoint.
func (e *ExecutorTx) Rollback(ctx context.Context) error {
	return e.tx.Rollback(ctx)
}

// Tx returns the underlying pgx.Tx.
func (e *ExecutorTx) Tx() pgx.Tx {
	return e.tx
}

var (
	_ driver.Driver[pgx.Tx] = (*Driver)(nil)
	_ driver.Store          = (*Store)(nil)
)

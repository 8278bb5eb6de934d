package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// ConnAdapter adapts *pgx.Conn to dbapi.Conn. This decouples the pool and
// the entity code from pgx-specific types.
//
// Thread-Safety: NOT safe for concurrent use, like the pgx.Conn it wraps.
// The pool guarantees one lease holder at a time.
type ConnAdapter struct {
	conn *pgx.Conn
}

// NewConn wraps conn.
func NewConn(conn *pgx.Conn) dbapi.Conn {
	return &ConnAdapter{conn: conn}
}

// Exec executes a statement without returning any rows.
func (c *ConnAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

// Query executes a statement that returns rows.
func (c *ConnAdapter) Query(ctx context.Context, sql string, args ...any) (dbapi.Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryRow executes a query that is expected to return at most one row.
func (c *ConnAdapter) QueryRow(ctx context.Context, sql string, args ...any) dbapi.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction.
func (c *ConnAdapter) Begin(ctx context.Context) (dbapi.Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txAdapter{tx: tx}, nil
}

// Ping verifies the connection is alive.
func (c *ConnAdapter) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// IsClosed reports whether the underlying connection is closed or broken.
func (c *ConnAdapter) IsClosed() bool {
	return c.conn.IsClosed()
}

// Close terminates the connection.
func (c *ConnAdapter) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Unwrap exposes the underlying connection for diagnostics.
func (c *ConnAdapter) Unwrap() *pgx.Conn {
	return c.conn
}

// txAdapter adapts pgx.Tx to dbapi.Tx.
type txAdapter struct {
	tx pgx.Tx
}

func (t *txAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

func (t *txAdapter) Query(ctx context.Context, sql string, args ...any) (dbapi.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *txAdapter) QueryRow(ctx context.Context, sql string, args ...any) dbapi.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *txAdapter) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (t *txAdapter) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Verify adapters implement the dbapi contracts at compile time
var (
	_ dbapi.Conn = (*ConnAdapter)(nil)
	_ dbapi.Tx   = (*txAdapter)(nil)
)

package dbapi

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement-execution surface shared by connections and transactions.
// Statements issued through one Querier execute in issuance order.
type Querier interface {
	// Exec executes a statement without returning any rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Query executes a statement that returns rows. The caller must Close the Rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a query that is expected to return at most one row.
	// Always returns a non-nil Row. Errors are deferred until Row's Scan method is called.
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Conn is one live database connection. A Conn is owned by exactly one lease holder
// at a time and is not safe for concurrent use.
type Conn interface {
	Querier

	// Begin starts a transaction on this connection.
	Begin(ctx context.Context) (Tx, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// IsClosed reports whether the connection is known to be unusable.
	IsClosed() bool

	// Close terminates the connection.
	Close(ctx context.Context) error
}

// Tx is an open transaction. Rollback after Commit is a no-op.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row represents a single row returned by QueryRow.
// This interface decouples from pgx.Row.
type Row interface {
	// Scan reads the values from the row into dest values.
	// Returns an error if no row was found or if the scan fails.
	Scan(dest ...any) error
}

// Rows is a result set iterator. This interface decouples from pgx.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Connector is a unified interface for establishing database connections.
// Different implementations handle various authentication methods
// (standard credentials, cloud IAM, etc.).
type Connector interface {
	// Connect establishes one new connection. The caller owns it and must Close it.
	Connect(ctx context.Context) (Conn, error)
}

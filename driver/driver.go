// Package driver provides database driver abstractions for legalpg.
//
// This package defines the capability interfaces a relational driver must
// implement to be used by the sqlengine package. It keeps the transaction
// engine independent of any specific driver: one adapter per driver lives in
// a subpackage (pgx/v5 in driver/pgxv5, database/sql in driver/databasesql).
//
// The model follows the classic connection/cursor split: a Pool hands out
// Conns, a Conn opens Cursors, and a Cursor executes one statement at a time
// and exposes its results page by page.
package driver

import "context"

// Params maps a named parameter to its bound value.
// Placeholders are written as %(name)s in SQL text.
type Params map[string]any

// Pool owns a bounded set of live database connections.
//
// Implementations must serialize Checkout and Checkin internally; they are
// the only operations of this package called from multiple goroutines at
// once.
type Pool interface {
	// Checkout hands out a connection that no other caller holds.
	// When the pool is at capacity, Checkout blocks until a connection is
	// checked in or ctx is done. It never returns a shared connection.
	Checkout(ctx context.Context) (Conn, error)

	// Checkin returns a connection for reuse. It never closes the physical
	// connection; a broken connection is discarded by the pool's own
	// bookkeeping rather than leaked.
	Checkin(conn Conn) error

	// Close releases every pooled connection. Called once at shutdown.
	Close()
}

// Conn is one live link to the database.
//
// A Conn is owned by exactly one caller between Checkout and Checkin and is
// not safe for concurrent use.
type Conn interface {
	// Cursor opens a new statement execution context on this connection.
	Cursor(ctx context.Context) (Cursor, error)

	// Autocommit reports whether statements commit individually.
	Autocommit() bool

	// SetAutocommit toggles autocommit mode. With autocommit off, the first
	// statement implicitly begins a transaction that lasts until Commit or
	// Rollback. Enabling autocommit while such a transaction is open fails
	// with ErrTransactionInProgress.
	SetAutocommit(ctx context.Context, enabled bool) error

	// Commit commits the open transaction, if any.
	Commit(ctx context.Context) error

	// Rollback rolls back the open transaction, if any.
	Rollback(ctx context.Context) error

	// IsClosed reports whether the underlying connection has been lost or
	// closed.
	IsClosed() bool
}

// Cursor is one statement execution context.
type Cursor interface {
	// Exec executes a statement that does not return rows.
	// RowCount reports the number of affected rows afterwards.
	Exec(ctx context.Context, sql string, params Params) error

	// Query executes a statement that returns rows.
	// The rows are then read with FetchOne and FetchMany.
	Query(ctx context.Context, sql string, params Params) error

	// ExecMany executes the same statement once per parameter set.
	// Drivers batch the executions where the protocol allows it.
	ExecMany(ctx context.Context, sql string, params []Params) error

	// FetchOne returns the next row, or nil when the result is exhausted.
	FetchOne() ([]any, error)

	// FetchMany returns up to n rows. An empty result means the result is
	// exhausted.
	FetchMany(n int) ([][]any, error)

	// RowCount returns the number of rows affected by the last write,
	// or -1 when unknown.
	RowCount() int64

	// Columns returns the column names of the last read.
	// Drivers may only know them once the first row has been fetched.
	Columns() []string

	// Close releases the cursor. Closing an already closed cursor is a no-op.
	Close() error
}

// Package databasesql provides a database/sql driver implementation for legalpg.
//
// It works with any *sql.DB but is tested against lib/pq, which Open
// registers. A checkout pins one *sql.Conn; autocommit-off mode maps onto a
// lazily begun *sql.Tx. Batches reuse one prepared statement, since
// database/sql has no protocol-level batching.
package databasesql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/youssefsiam38/legalpg/driver"
)

// DriverName is the database/sql driver name registered by lib/pq.
const DriverName = "postgres"

// Pool implements driver.Pool over a *sql.DB.
type Pool struct {
	db     *sql.DB
	logger driver.Logger
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, logger driver.Logger) *Pool {
	return &Pool{db: db, logger: driver.OrNop(logger)}
}

// Open opens a lib/pq backed *sql.DB keeping up to minConns idle
// connections and at most maxConns open ones, and verifies it with a ping.
func Open(ctx context.Context, dsn string, minConns, maxConns int, logger driver.Logger) (*Pool, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db := sql.OpenDB(connector)
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if minConns > 0 {
		db.SetMaxIdleConns(minConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, logger), nil
}

// Checkout pins one connection of the *sql.DB. database/sql blocks while
// MaxOpenConns connections are in use, until one is returned or ctx is done.
func (p *Pool) Checkout(ctx context.Context) (driver.Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c, autocommit: true, logger: p.logger}, nil
}

// Checkin returns the connection to the *sql.DB. Closing a *sql.Conn hands
// the physical connection back to the pool; database/sql discards it
// instead when it went bad.
func (p *Pool) Checkin(conn driver.Conn) error {
	c, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("databasesql: cannot check in %T", conn)
	}
	return c.release()
}

// Close closes the *sql.DB.
func (p *Pool) Close() {
	if err := p.db.Close(); err != nil {
		p.logger.Warn("failed to close database", "error", err)
	}
}

// DB returns the underlying database handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Compile-time check
var _ driver.Pool = (*Pool)(nil)

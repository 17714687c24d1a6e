// Package pgxv5 provides a pgx/v5 driver implementation for legalpg.
//
// This is the primary/recommended driver. The pool is a pgxpool.Pool, the
// autocommit-off mode maps onto a lazily begun pgx.Tx, and batch execution
// uses pgx.Batch so a whole batch costs a single round trip.
//
// Usage:
//
//	pool, _ := pgxv5.Open(ctx, databaseURL, 1, 8, logger)
//	engine := sqlengine.New(sqlengine.NewPoolDataSource(pool))
package pgxv5

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/legalpg/driver"
)

// Pool implements driver.Pool over a pgxpool.Pool.
type Pool struct {
	pool   *pgxpool.Pool
	logger driver.Logger
}

// New wraps an existing pgxpool.Pool. The caller keeps ownership of the
// pool's configuration; Close closes it.
func New(pool *pgxpool.Pool, logger driver.Logger) *Pool {
	return &Pool{pool: pool, logger: driver.OrNop(logger)}
}

// Open creates a pgxpool.Pool holding between minConns and maxConns
// connections and verifies it with a ping.
func Open(ctx context.Context, connString string, minConns, maxConns int32, logger driver.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(pool, logger), nil
}

// Checkout acquires a connection. pgxpool blocks while all MaxConns
// connections are in use, until one is released or ctx is done.
func (p *Pool) Checkout(ctx context.Context) (driver.Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c, autocommit: true, logger: p.logger}, nil
}

// Checkin releases the connection back to pgxpool. pgxpool destroys
// connections that are closed or still inside a transaction instead of
// reusing them.
func (p *Pool) Checkin(conn driver.Conn) error {
	c, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("pgxv5: cannot check in %T", conn)
	}
	c.release()
	return nil
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Pool returns the underlying pgxpool.Pool for advanced usage.
func (p *Pool) Pool() *pgxpool.Pool {
	return p.pool
}

// Compile-time check
var _ driver.Pool = (*Pool)(nil)

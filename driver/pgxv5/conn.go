package pgxv5

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/legalpg/driver"
)

// querier is the common surface of *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Conn implements driver.Conn over a checked-out *pgxpool.Conn.
type Conn struct {
	conn       *pgxpool.Conn
	tx         pgx.Tx
	autocommit bool
	released   bool
	logger     driver.Logger
}

// Cursor opens a new cursor on the connection.
func (c *Conn) Cursor(ctx context.Context) (driver.Cursor, error) {
	return &Cursor{conn: c, rowCount: -1}, nil
}

// Autocommit reports whether statements run outside an explicit transaction.
func (c *Conn) Autocommit() bool {
	return c.autocommit
}

// SetAutocommit toggles autocommit mode.
func (c *Conn) SetAutocommit(ctx context.Context, enabled bool) error {
	if enabled && c.tx != nil {
		return driver.ErrTransactionInProgress
	}
	c.autocommit = enabled
	return nil
}

// Commit commits the open transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit(ctx)
}

// Rollback rolls back the open transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback(ctx)
}

// IsClosed reports whether the underlying connection is closed.
func (c *Conn) IsClosed() bool {
	return c.released || c.conn.Conn().IsClosed()
}

// Conn returns the underlying *pgxpool.Conn for advanced usage.
func (c *Conn) Conn() *pgxpool.Conn {
	return c.conn
}

// querier returns the target for the next statement, beginning a transaction
// first when autocommit is off and none is open.
func (c *Conn) querier(ctx context.Context) (querier, error) {
	if c.autocommit {
		return c.conn, nil
	}
	if c.tx == nil {
		tx, err := c.conn.Begin(ctx)
		if err != nil {
			return nil, err
		}
		c.tx = tx
	}
	return c.tx, nil
}

func (c *Conn) release() {
	if c.released {
		return
	}
	if c.tx != nil {
		if err := c.tx.Rollback(context.Background()); err != nil {
			c.logger.Warn("rollback of abandoned transaction failed", "error", err)
		}
		c.tx = nil
	}
	c.released = true
	c.conn.Release()
}

// Compile-time check
var _ driver.Conn = (*Conn)(nil)

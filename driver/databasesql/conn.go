package databasesql

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"

	"github.com/lib/pq"
	"github.com/youssefsiam38/legalpg/driver"
)

// querier is the common surface of *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn implements driver.Conn over a pinned *sql.Conn.
type Conn struct {
	conn       *sql.Conn
	tx         *sql.Tx
	autocommit bool
	broken     bool
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
	return c.observe(tx.Commit())
}

// Rollback rolls back the open transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return c.observe(tx.Rollback())
}

// IsClosed reports whether the connection was released or has reported a
// connection-level failure.
func (c *Conn) IsClosed() bool {
	return c.released || c.broken
}

func (c *Conn) querier(ctx context.Context) (querier, error) {
	if c.autocommit {
		return c.conn, nil
	}
	if c.tx == nil {
		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, c.observe(err)
		}
		c.tx = tx
	}
	return c.tx, nil
}

// observe records connection-level failures so IsClosed reflects them.
func (c *Conn) observe(err error) error {
	if err != nil && isConnectionError(err) {
		c.broken = true
	}
	return err
}

func (c *Conn) release() error {
	if c.released {
		return nil
	}
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			c.logger.Warn("rollback of abandoned transaction failed", "error", err)
		}
		c.tx = nil
	}
	c.released = true
	return c.conn.Close()
}

func isConnectionError(err error) bool {
	if errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception; 57P01..57P03: server shutting down.
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return true
		}
	}
	return false
}

// Compile-time check
var _ driver.Conn = (*Conn)(nil)

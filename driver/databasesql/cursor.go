package databasesql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/youssefsiam38/legalpg/driver"
)

// Cursor implements driver.Cursor over *sql.Rows.
type Cursor struct {
	conn     *Conn
	rows     *sql.Rows
	binary   []bool
	done     bool
	columns  []string
	rowCount int64
	read     int64
	closed   bool
}

// Exec executes a statement that does not return rows.
func (c *Cursor) Exec(ctx context.Context, query string, params driver.Params) error {
	if err := c.reset(); err != nil {
		return err
	}
	query, args, err := driver.Positional(query, params)
	if err != nil {
		return err
	}
	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute", "sql", query, "params", len(params))
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return c.conn.observe(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	c.rowCount = affected
	return nil
}

// Query executes a statement that returns rows.
func (c *Cursor) Query(ctx context.Context, query string, params driver.Params) error {
	if err := c.reset(); err != nil {
		return err
	}
	query, args, err := driver.Positional(query, params)
	if err != nil {
		return err
	}
	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute", "sql", query, "params", len(params))
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return c.conn.observe(err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return err
	}
	c.columns = make([]string, len(types))
	c.binary = make([]bool, len(types))
	for i, ct := range types {
		c.columns[i] = ct.Name()
		c.binary[i] = strings.EqualFold(ct.DatabaseTypeName(), "BYTEA")
	}
	c.rows = rows
	return nil
}

// ExecMany prepares the statement once and executes it per parameter set.
func (c *Cursor) ExecMany(ctx context.Context, query string, params []driver.Params) (err error) {
	if err := c.reset(); err != nil {
		return err
	}
	if len(params) == 0 {
		c.rowCount = 0
		return nil
	}

	compiled, names, err := driver.Compile(query, params[0], func(_ string, pos int) string {
		return "$" + strconv.Itoa(pos)
	})
	if err != nil {
		return err
	}

	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute batch", "sql", compiled, "size", len(params))
	stmt, err := q.PrepareContext(ctx, compiled)
	if err != nil {
		return c.conn.observe(err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var affected int64
	for i, p := range params {
		for _, name := range names {
			if _, ok := p[name]; !ok {
				return fmt.Errorf("%w: %s (batch item %d)", driver.ErrMissingParam, name, i)
			}
		}
		result, execErr := stmt.ExecContext(ctx, driver.Args(names, p)...)
		if execErr != nil {
			return c.conn.observe(execErr)
		}
		n, execErr := result.RowsAffected()
		if execErr != nil {
			return execErr
		}
		affected += n
	}
	c.rowCount = affected
	return nil
}

// FetchOne returns the next row, or nil once the result is exhausted.
// Text values arrive as []byte from lib/pq and are returned as strings;
// bytea columns stay []byte.
func (c *Cursor) FetchOne() ([]any, error) {
	if c.closed {
		return nil, driver.ErrCursorClosed
	}
	if c.rows == nil {
		return nil, driver.ErrNoResult
	}
	if c.done {
		return nil, nil
	}
	if !c.rows.Next() {
		return nil, c.finish()
	}

	values := make([]any, len(c.columns))
	dest := make([]any, len(c.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok && !c.binary[i] {
			values[i] = string(b)
		}
	}
	c.read++
	return values, nil
}

// FetchMany returns up to n rows.
func (c *Cursor) FetchMany(n int) ([][]any, error) {
	var page [][]any
	for len(page) < n {
		row, err := c.FetchOne()
		if err != nil {
			return page, err
		}
		if row == nil {
			break
		}
		page = append(page, row)
	}
	return page, nil
}

// RowCount returns the affected row count of the last write, or the number
// of rows read once a query is exhausted. It is -1 before that.
func (c *Cursor) RowCount() int64 {
	return c.rowCount
}

// Columns returns the column names of the last query.
func (c *Cursor) Columns() []string {
	return c.columns
}

// Close closes any open result and marks the cursor closed.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.rows != nil && !c.done {
		c.done = true
		return c.rows.Close()
	}
	return nil
}

func (c *Cursor) reset() error {
	if c.closed {
		return driver.ErrCursorClosed
	}
	if c.rows != nil && !c.done {
		if err := c.rows.Close(); err != nil {
			return err
		}
	}
	c.rows = nil
	c.binary = nil
	c.done = false
	c.columns = nil
	c.read = 0
	c.rowCount = -1
	return nil
}

func (c *Cursor) finish() error {
	c.done = true
	c.rowCount = c.read
	if err := c.rows.Err(); err != nil {
		c.rows.Close()
		return c.conn.observe(err)
	}
	return c.rows.Close()
}

// Compile-time check
var _ driver.Cursor = (*Cursor)(nil)

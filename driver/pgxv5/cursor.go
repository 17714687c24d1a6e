package pgxv5

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/youssefsiam38/legalpg/driver"
)

// Cursor implements driver.Cursor. Reads stream through pgx.Rows, which
// decodes one row at a time off the wire.
type Cursor struct {
	conn     *Conn
	rows     pgx.Rows
	done     bool
	columns  []string
	rowCount int64
	closed   bool
}

// Exec executes a statement that does not return rows.
func (c *Cursor) Exec(ctx context.Context, sql string, params driver.Params) error {
	if err := c.reset(); err != nil {
		return err
	}
	sql, args, err := bind(sql, params)
	if err != nil {
		return err
	}
	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute", "sql", sql, "params", len(params))
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	c.rowCount = tag.RowsAffected()
	return nil
}

// Query executes a statement that returns rows.
func (c *Cursor) Query(ctx context.Context, sql string, params driver.Params) error {
	if err := c.reset(); err != nil {
		return err
	}
	sql, args, err := bind(sql, params)
	if err != nil {
		return err
	}
	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute", "sql", sql, "params", len(params))
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return err
	}

	fields := rows.FieldDescriptions()
	c.columns = make([]string, len(fields))
	for i, f := range fields {
		c.columns[i] = f.Name
	}
	c.rows = rows
	return nil
}

// ExecMany queues one statement per parameter set and sends them as a
// single pgx.Batch.
func (c *Cursor) ExecMany(ctx context.Context, sql string, params []driver.Params) (err error) {
	if err := c.reset(); err != nil {
		return err
	}
	if len(params) == 0 {
		c.rowCount = 0
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range params {
		compiled, args, err := bind(sql, p)
		if err != nil {
			return err
		}
		batch.Queue(compiled, args...)
	}

	q, err := c.conn.querier(ctx)
	if err != nil {
		return err
	}

	c.conn.logger.Debug("execute batch", "sql", sql, "size", len(params))
	results := q.SendBatch(ctx, batch)
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var affected int64
	for range params {
		tag, execErr := results.Exec()
		if execErr != nil {
			return execErr
		}
		affected += tag.RowsAffected()
	}
	c.rowCount = affected
	return nil
}

// FetchOne returns the next row, or nil once the result is exhausted.
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
	return c.rows.Values()
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
		return c.finish()
	}
	return nil
}

func (c *Cursor) reset() error {
	if c.closed {
		return driver.ErrCursorClosed
	}
	if c.rows != nil && !c.done {
		if err := c.finish(); err != nil {
			return err
		}
	}
	c.rows = nil
	c.done = false
	c.columns = nil
	c.rowCount = -1
	return nil
}

func (c *Cursor) finish() error {
	c.rows.Close()
	c.done = true
	c.rowCount = c.rows.CommandTag().RowsAffected()
	return c.rows.Err()
}

// bind rewrites %(name)s placeholders to pgx @name placeholders bound with
// pgx.NamedArgs.
func bind(sql string, params driver.Params) (string, []any, error) {
	if params == nil {
		return sql, nil, nil
	}
	compiled, _, err := driver.Compile(sql, params, func(name string, _ int) string {
		return "@" + name
	})
	if err != nil {
		return "", nil, err
	}
	return compiled, []any{pgx.NamedArgs(params)}, nil
}

// Compile-time check
var _ driver.Cursor = (*Cursor)(nil)

package sqlengine

import (
	"context"
	"errors"
	"sync"

	"github.com/youssefsiam38/legalpg/driver"
)

// fakePool is an in-memory driver.Pool with a fixed number of connections.
type fakePool struct {
	mu       sync.Mutex
	idle     chan *fakeConn
	checkins int
	closed   bool
}

func newFakePool(conns ...*fakeConn) *fakePool {
	p := &fakePool{idle: make(chan *fakeConn, len(conns))}
	for _, c := range conns {
		p.idle <- c
	}
	return p
}

func (p *fakePool) Checkout(ctx context.Context) (driver.Conn, error) {
	select {
	case c := <-p.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePool) Checkin(conn driver.Conn) error {
	p.mu.Lock()
	p.checkins++
	p.mu.Unlock()
	p.idle <- conn.(*fakeConn)
	return nil
}

func (p *fakePool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// fakeConn records the calls the engine makes on a connection.
type fakeConn struct {
	autocommit bool
	closed     bool

	// rows is returned by every query; result is the affected row count.
	rows    [][]any
	columns []string
	result  int64

	execErr     error
	commitErr   error
	rollbackErr error
	closeErr    error

	commits     int
	rollbacks   int
	fetches     int
	cursors     []*fakeCursor
	executed    []string
	batchParams []driver.Params
}

func newFakeConn() *fakeConn {
	return &fakeConn{autocommit: true}
}

func (c *fakeConn) Cursor(context.Context) (driver.Cursor, error) {
	cur := &fakeCursor{conn: c, rowCount: -1}
	c.cursors = append(c.cursors, cur)
	return cur, nil
}

func (c *fakeConn) Autocommit() bool { return c.autocommit }

func (c *fakeConn) SetAutocommit(_ context.Context, enabled bool) error {
	c.autocommit = enabled
	return nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.commits++
	return c.commitErr
}

func (c *fakeConn) Rollback(context.Context) error {
	c.rollbacks++
	return c.rollbackErr
}

func (c *fakeConn) IsClosed() bool { return c.closed }

func (c *fakeConn) openCursors() int {
	n := 0
	for _, cur := range c.cursors {
		if !cur.closed {
			n++
		}
	}
	return n
}

type fakeCursor struct {
	conn     *fakeConn
	rows     [][]any
	pos      int
	active   bool
	rowCount int64
	closed   bool
}

func (c *fakeCursor) Exec(_ context.Context, sql string, _ driver.Params) error {
	if c.closed {
		return driver.ErrCursorClosed
	}
	c.conn.executed = append(c.conn.executed, sql)
	if c.conn.execErr != nil {
		return c.conn.execErr
	}
	c.rowCount = c.conn.result
	return nil
}

func (c *fakeCursor) Query(_ context.Context, sql string, _ driver.Params) error {
	if c.closed {
		return driver.ErrCursorClosed
	}
	c.conn.executed = append(c.conn.executed, sql)
	if c.conn.execErr != nil {
		return c.conn.execErr
	}
	c.rows = c.conn.rows
	c.pos = 0
	c.active = true
	return nil
}

func (c *fakeCursor) ExecMany(_ context.Context, sql string, params []driver.Params) error {
	if c.closed {
		return driver.ErrCursorClosed
	}
	c.conn.executed = append(c.conn.executed, sql)
	if c.conn.execErr != nil {
		return c.conn.execErr
	}
	c.conn.batchParams = append(c.conn.batchParams, params...)
	c.rowCount = int64(len(params))
	return nil
}

func (c *fakeCursor) FetchOne() ([]any, error) {
	rows, err := c.FetchMany(1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (c *fakeCursor) FetchMany(n int) ([][]any, error) {
	if c.closed {
		return nil, driver.ErrCursorClosed
	}
	if !c.active {
		return nil, driver.ErrNoResult
	}
	c.conn.fetches++
	end := min(c.pos+n, len(c.rows))
	page := make([][]any, 0, end-c.pos)
	for _, r := range c.rows[c.pos:end] {
		page = append(page, append([]any(nil), r...))
	}
	c.pos = end
	return page, nil
}

func (c *fakeCursor) RowCount() int64 { return c.rowCount }

func (c *fakeCursor) Columns() []string { return c.conn.columns }

func (c *fakeCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.closeErr
}

var errBoom = errors.New("boom")

// newTestEngine returns an engine over a single fake connection.
func newTestEngine(conn *fakeConn, opts ...Option) (*Engine, *fakePool) {
	pool := newFakePool(conn)
	engine, err := New(NewPoolDataSource(pool), opts...)
	if err != nil {
		panic(err)
	}
	return engine, pool
}

func numberedRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i, "row"}
	}
	return rows
}

var (
	_ driver.Pool   = (*fakePool)(nil)
	_ driver.Conn   = (*fakeConn)(nil)
	_ driver.Cursor = (*fakeCursor)(nil)
)

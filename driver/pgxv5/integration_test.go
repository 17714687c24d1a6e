package pgxv5_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/driver/pgxv5"
	"github.com/youssefsiam38/legalpg/internal/testutil"
)

func openTestPool(t *testing.T, maxConns int32) *pgxv5.Pool {
	t.Helper()
	dbURL := testutil.DatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxv5.Open(ctx, dbURL, 1, maxConns, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// checkoutWithTable checks out a connection holding a temporary table t(n).
func checkoutWithTable(t *testing.T, pool *pgxv5.Pool) driver.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Checkin(conn); err != nil {
			t.Errorf("Checkin failed: %v", err)
		}
	})
	cur, err := conn.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	defer cur.Close()
	if err := cur.Exec(ctx, "CREATE TEMPORARY TABLE t (n INTEGER NOT NULL)", nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return conn
}

func count(t *testing.T, conn driver.Conn) int64 {
	t.Helper()
	ctx := context.Background()
	cur, err := conn.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	defer cur.Close()
	if err := cur.Query(ctx, "SELECT count(*) FROM t", nil); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	row, err := cur.FetchOne()
	if err != nil {
		t.Fatalf("FetchOne failed: %v", err)
	}
	return row[0].(int64)
}

func TestIntegration_Pgx_CommitAndRollback(t *testing.T) {
	pool := openTestPool(t, 2)
	conn := checkoutWithTable(t, pool)
	ctx := context.Background()

	if !conn.Autocommit() {
		t.Fatal("checked out connection is not in autocommit mode")
	}
	if err := conn.SetAutocommit(ctx, false); err != nil {
		t.Fatalf("SetAutocommit failed: %v", err)
	}

	cur, _ := conn.Cursor(ctx)
	if err := cur.Exec(ctx, "INSERT INTO t (n) VALUES (%(n)s)", driver.Params{"n": 1}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if cur.RowCount() != 1 {
		t.Errorf("RowCount() = %d, want 1", cur.RowCount())
	}
	if err := conn.SetAutocommit(ctx, true); !errors.Is(err, driver.ErrTransactionInProgress) {
		t.Errorf("SetAutocommit(true) err = %v, want %v", err, driver.ErrTransactionInProgress)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if n := count(t, conn); n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}

	if err := cur.Exec(ctx, "INSERT INTO t (n) VALUES (%(n)s)", driver.Params{"n": 2}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	_ = cur.Close()
	if err := conn.SetAutocommit(ctx, true); err != nil {
		t.Fatalf("SetAutocommit(true) failed: %v", err)
	}
	if n := count(t, conn); n != 1 {
		t.Errorf("rows after commit = %d, want 1", n)
	}
}

func TestIntegration_Pgx_CursorPaging(t *testing.T) {
	pool := openTestPool(t, 2)
	conn := checkoutWithTable(t, pool)
	ctx := context.Background()

	cur, _ := conn.Cursor(ctx)
	defer cur.Close()

	if _, err := cur.FetchOne(); !errors.Is(err, driver.ErrNoResult) {
		t.Errorf("FetchOne before Query err = %v, want %v", err, driver.ErrNoResult)
	}

	params := make([]driver.Params, 25)
	for i := range params {
		params[i] = driver.Params{"n": i}
	}
	if err := cur.ExecMany(ctx, "INSERT INTO t (n) VALUES (%(n)s)", params); err != nil {
		t.Fatalf("ExecMany failed: %v", err)
	}
	if cur.RowCount() != 25 {
		t.Errorf("RowCount() = %d, want 25", cur.RowCount())
	}

	if err := cur.Query(ctx, "SELECT n, n * 2 AS twice FROM t ORDER BY n", nil); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := cur.Columns(); !reflect.DeepEqual(got, []string{"n", "twice"}) {
		t.Errorf("Columns() = %v", got)
	}

	var sizes []int
	for {
		page, err := cur.FetchMany(10)
		if err != nil {
			t.Fatalf("FetchMany failed: %v", err)
		}
		if len(page) == 0 {
			break
		}
		sizes = append(sizes, len(page))
	}
	if fmt.Sprint(sizes) != "[10 10 5]" {
		t.Errorf("page sizes = %v, want [10 10 5]", sizes)
	}
	if cur.RowCount() != 25 {
		t.Errorf("RowCount() after read = %d, want 25", cur.RowCount())
	}

	if err := cur.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cur.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := cur.Exec(ctx, "SELECT 1", nil); !errors.Is(err, driver.ErrCursorClosed) {
		t.Errorf("Exec after Close err = %v, want %v", err, driver.ErrCursorClosed)
	}
}

func TestIntegration_Pgx_CheckoutBlocksWhenExhausted(t *testing.T) {
	pool := openTestPool(t, 1)

	conn, err := pool.Checkout(context.Background())
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := pool.Checkout(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Checkout on exhausted pool err = %v, want %v", err, context.DeadlineExceeded)
	}

	if err := pool.Checkin(conn); err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}
	conn, err = pool.Checkout(context.Background())
	if err != nil {
		t.Fatalf("Checkout after Checkin failed: %v", err)
	}
	_ = pool.Checkin(conn)
}

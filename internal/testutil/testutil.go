// Package testutil provides test utilities for legalpg
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/youssefsiam38/legalpg/driver/pgxv5"
	"github.com/youssefsiam38/legalpg/sqlengine"
)

// TestDB wraps a pgx-backed engine for integration tests
type TestDB struct {
	Pool   *pgxv5.Pool
	Engine *sqlengine.Engine
}

// NewTestDB connects to DATABASE_URL with at most maxConns connections.
// The test is skipped if DATABASE_URL is not set.
func NewTestDB(t *testing.T, maxConns int32, opts ...sqlengine.DataSourceOption) *TestDB {
	t.Helper()

	dbURL := DatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxv5.Open(ctx, dbURL, 1, maxConns, nil)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	engine, err := sqlengine.New(sqlengine.NewPoolDataSource(pool, opts...))
	if err != nil {
		pool.Close()
		t.Fatalf("Failed to create engine: %v", err)
	}

	db := &TestDB{Pool: pool, Engine: engine}
	t.Cleanup(db.Close)
	return db
}

// Close closes the database connection
func (db *TestDB) Close() {
	if db.Engine != nil {
		db.Engine.Close()
		db.Engine = nil
	}
}

// Exec runs statements outside any engine transaction, e.g. DDL.
func (db *TestDB) Exec(ctx context.Context, sql string) error {
	_, err := db.Pool.Pool().Exec(ctx, sql)
	return err
}

// UniqueTable returns a table name that no other test uses, and drops the
// table when the test ends.
func (db *TestDB) UniqueTable(t *testing.T, prefix string) string {
	t.Helper()
	name := fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if db.Engine == nil {
			return
		}
		if err := db.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			t.Logf("Failed to drop %s: %v", name, err)
		}
	})
	return name
}

// DatabaseURL returns DATABASE_URL or skips the test
func DatabaseURL(t *testing.T) string {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	return dbURL
}

// RequireIntegration skips the test if not running integration tests
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
}

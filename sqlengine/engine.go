// Package sqlengine provides the transactional SQL execution engine.
//
// The engine turns pooled driver connections into scoped transactions:
//
//	engine, _ := sqlengine.New(sqlengine.NewPoolDataSource(pool))
//	err := engine.Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
//	    _, err := tx.Exec(ctx, "UPDATE t SET x = %(x)s", driver.Params{"x": 1})
//	    return err
//	})
//
// The transaction commits when the callback returns nil and rolls back when
// it returns an error, panics, or called tx.Rollback. Either way, open cursors
// are closed first, the connection's autocommit mode is restored, and the
// connection goes back to the pool.
//
// QueryBuilder composes filtered, ordered and paginated SELECT statements
// whose parameters bind to the same %(name)s placeholders.
package sqlengine

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/legalpg/driver"
)

// Engine opens transactions against a DataSource. It holds no per-call state
// and is safe to share; each call yields an independent transaction on its
// own connection.
type Engine struct {
	source   DataSource
	pageSize int
	logger   driver.Logger
}

// Option is a functional option for configuring an Engine
type Option func(*Engine) error

// WithPageSize sets how many rows a query stream fetches at once.
func WithPageSize(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidConfig, n)
		}
		e.pageSize = n
		return nil
	}
}

// WithLogger sets the logger for transaction lifecycle and cleanup events.
func WithLogger(logger driver.Logger) Option {
	return func(e *Engine) error {
		e.logger = driver.OrNop(logger)
		return nil
	}
}

// New creates an Engine over source.
func New(source DataSource, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: data source is required", ErrInvalidConfig)
	}
	e := &Engine{
		source:   source,
		pageSize: DefaultPageSize,
		logger:   driver.NopLogger{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Transaction runs fn inside a new transaction on a freshly checked-out
// connection. The context passed to fn carries the transaction, so code
// using InTransaction joins it.
//
// The returned error is fn's error when it failed; otherwise it reports a
// failed commit or a failed requested rollback.
func (e *Engine) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	return e.source.WithConnection(ctx, func(ctx context.Context, conn driver.Conn) error {
		tx, err := begin(ctx, conn, e.pageSize, e.logger)
		if err != nil {
			return err
		}

		finished := false
		defer func() {
			if !finished {
				// fn panicked; roll back before the panic reaches the caller.
				_ = tx.finalize(ctx, errScopePanicked)
			}
		}()

		err = fn(WithTransaction(ctx, tx), tx)
		finished = true
		return tx.finalize(ctx, err)
	})
}

// InTransaction runs fn in the active transaction carried by ctx, or in a
// new one when ctx carries none. When joining, a failure of fn marks the
// enclosing transaction for rollback.
func (e *Engine) InTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	if tx := TransactionFromContext(ctx); tx != nil && tx.State() == StateActive {
		if err := fn(ctx, tx); err != nil {
			tx.Rollback()
			return err
		}
		return nil
	}
	return e.Transaction(ctx, fn)
}

// PageSize returns the number of rows fetched per page.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Close closes the data source and its pool. Call once at shutdown.
func (e *Engine) Close() {
	e.source.Close()
}

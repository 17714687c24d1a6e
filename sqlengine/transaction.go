package sqlengine

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/youssefsiam38/legalpg/driver"
	"go.uber.org/multierr"
)

// State is the lifecycle state of a Transaction.
type State int

const (
	// StateIdle means the transaction has not been entered yet.
	StateIdle State = iota
	// StateActive means the connection is acquired and autocommit is off.
	StateActive
	// StateFinalizing means the scope has ended and open cursors are being
	// closed before commit or rollback.
	StateFinalizing
	// StateCommitted means the transaction committed. It is terminal.
	StateCommitted
	// StateRolledBack means the transaction rolled back. It is terminal.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transaction is one unit of work bound to one connection.
//
// A Transaction is created by Engine.Transaction and lives exactly as long as
// the callback passed to it. Every operation opens its own cursor, which the
// transaction tracks until it is closed; on scope exit any cursor still open
// is closed before the transaction commits or rolls back.
//
// A Transaction is used by one goroutine at a time.
type Transaction struct {
	id                string
	conn              driver.Conn
	prevAutocommit    bool
	rollbackRequested bool
	cursors           map[driver.Cursor]struct{}
	state             State
	pageSize          int
	logger            driver.Logger
}

// begin enters a new transaction on conn: it records the connection's
// autocommit mode and disables it.
func begin(ctx context.Context, conn driver.Conn, pageSize int, logger driver.Logger) (*Transaction, error) {
	tx := &Transaction{
		id:       uuid.NewString(),
		conn:     conn,
		cursors:  make(map[driver.Cursor]struct{}),
		state:    StateIdle,
		pageSize: pageSize,
		logger:   logger,
	}

	tx.prevAutocommit = conn.Autocommit()
	if err := conn.SetAutocommit(ctx, false); err != nil {
		return nil, fmt.Errorf("failed to disable autocommit: %w", err)
	}

	tx.state = StateActive
	tx.logger.Debug("transaction started", "tx_id", tx.id)
	return tx, nil
}

// ID returns the transaction's identifier used in log records.
func (tx *Transaction) ID() string {
	return tx.id
}

// State returns the current lifecycle state.
func (tx *Transaction) State() State {
	return tx.state
}

// Rollback requests that the transaction roll back instead of committing when
// its scope ends. The request is sticky.
func (tx *Transaction) Rollback() {
	tx.rollbackRequested = true
}

// RollbackRequested reports whether Rollback has been called or the scope
// has failed.
func (tx *Transaction) RollbackRequested() bool {
	return tx.rollbackRequested
}

// OpenCursors returns the number of cursors not yet closed.
func (tx *Transaction) OpenCursors() int {
	return len(tx.cursors)
}

// Query executes sql and returns a lazy, forward-only stream of records read
// in pages of the engine's page size. The caller must Close the Rows, or
// drain it; unclosed Rows are closed when the transaction ends.
func (tx *Transaction) Query(ctx context.Context, sql string, params driver.Params) (*Rows, error) {
	cur, err := tx.openCursor(ctx)
	if err != nil {
		return nil, err
	}
	if err := cur.Query(ctx, sql, params); err != nil {
		tx.discardCursor(cur)
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{tx: tx, cursor: cur, pageSize: tx.pageSize}, nil
}

// Stream is Query as a range-over-func sequence. Breaking out of the loop
// closes the cursor. A failure is yielded once as the last element.
func (tx *Transaction) Stream(ctx context.Context, sql string, params driver.Params) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rows, err := tx.Query(ctx, sql, params)
		if err != nil {
			yield(nil, err)
			return
		}
		rows.All()(yield)
	}
}

// QueryScalar executes sql and returns the first column of the first row.
// ok is false when the query returned no rows.
func (tx *Transaction) QueryScalar(ctx context.Context, sql string, params driver.Params) (value any, ok bool, err error) {
	cur, err := tx.openCursor(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if closeErr := tx.closeCursor(cur); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := cur.Query(ctx, sql, params); err != nil {
		return nil, false, fmt.Errorf("failed to execute scalar query: %w", err)
	}
	row, err := cur.FetchOne()
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch scalar: %w", err)
	}
	if len(row) == 0 {
		return nil, false, nil
	}
	return row[0], true, nil
}

// Exec executes one parameterized write and returns the affected row count.
func (tx *Transaction) Exec(ctx context.Context, sql string, params driver.Params) (affected int64, err error) {
	cur, err := tx.openCursor(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := tx.closeCursor(cur); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := cur.Exec(ctx, sql, params); err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return cur.RowCount(), nil
}

// ExecBatch executes the same statement once per parameter set, batched at
// the driver level.
func (tx *Transaction) ExecBatch(ctx context.Context, sql string, params []driver.Params) (err error) {
	cur, err := tx.openCursor(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tx.closeCursor(cur); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := cur.ExecMany(ctx, sql, params); err != nil {
		return fmt.Errorf("failed to execute batch of %d: %w", len(params), err)
	}
	return nil
}

func (tx *Transaction) openCursor(ctx context.Context) (driver.Cursor, error) {
	if tx.state != StateActive {
		return nil, fmt.Errorf("%w (state=%s)", ErrTransactionClosed, tx.state)
	}
	cur, err := tx.conn.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor: %w", err)
	}
	tx.cursors[cur] = struct{}{}
	return cur, nil
}

// closeCursor closes a tracked cursor and stops tracking it. Cursors that are
// no longer tracked were already closed by finalize.
func (tx *Transaction) closeCursor(cur driver.Cursor) error {
	if _, ok := tx.cursors[cur]; !ok {
		return nil
	}
	delete(tx.cursors, cur)
	if err := cur.Close(); err != nil {
		return fmt.Errorf("failed to close cursor: %w", err)
	}
	return nil
}

// discardCursor closes a cursor on a path that already has an error to report.
func (tx *Transaction) discardCursor(cur driver.Cursor) {
	if err := tx.closeCursor(cur); err != nil {
		tx.logger.Warn("failed to close cursor", "tx_id", tx.id, "error", err)
	}
}

// finalize ends the transaction. Every tracked cursor is closed first, then
// the transaction rolls back if that was requested or scopeErr is non-nil,
// and commits otherwise. The connection's autocommit mode is restored last.
//
// Cleanup failures never replace scopeErr; they are logged, and returned
// only when the scope itself succeeded.
func (tx *Transaction) finalize(ctx context.Context, scopeErr error) error {
	ctx = context.WithoutCancel(ctx)
	tx.state = StateFinalizing
	if scopeErr != nil {
		tx.rollbackRequested = true
	}

	var closeErr error
	for cur := range tx.cursors {
		delete(tx.cursors, cur)
		closeErr = multierr.Append(closeErr, cur.Close())
	}
	if closeErr != nil {
		tx.logger.Warn("failed to close cursors", "tx_id", tx.id, "error", closeErr)
	}

	var finalErr error
	if tx.rollbackRequested {
		if !tx.conn.IsClosed() {
			if err := tx.conn.Rollback(ctx); err != nil {
				tx.logger.Error("rollback failed", "tx_id", tx.id, "error", err)
				finalErr = fmt.Errorf("%w: %w", ErrRollbackFailed, err)
			}
		}
		tx.state = StateRolledBack
	} else {
		if err := tx.conn.Commit(ctx); err != nil {
			tx.logger.Error("commit failed", "tx_id", tx.id, "error", err)
			finalErr = fmt.Errorf("%w: %w", ErrCommitFailed, err)
			tx.state = StateRolledBack
		} else {
			tx.state = StateCommitted
		}
	}

	if !tx.conn.IsClosed() {
		if err := tx.conn.SetAutocommit(ctx, tx.prevAutocommit); err != nil {
			tx.logger.Error("failed to restore autocommit", "tx_id", tx.id, "error", err)
			finalErr = multierr.Append(finalErr, fmt.Errorf("failed to restore autocommit: %w", err))
		}
	}

	tx.logger.Debug("transaction finished", "tx_id", tx.id, "state", tx.state.String())

	if scopeErr != nil {
		return scopeErr
	}
	return finalErr
}

package sqlengine

import "errors"

var (
	// ErrAcquireConnection is returned when no connection could be checked
	// out of the pool, either because the driver failed to connect or because
	// the pool stayed exhausted for the whole acquire timeout.
	ErrAcquireConnection = errors.New("failed to acquire connection")

	// ErrTransactionClosed is returned when an operation is attempted on a
	// transaction that is not active.
	ErrTransactionClosed = errors.New("transaction is not active")

	// ErrCommitFailed is returned when the final commit of a transaction fails
	ErrCommitFailed = errors.New("commit failed")

	// ErrRollbackFailed is returned when an explicitly requested rollback fails
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrQueryTemplate is returned by QueryBuilder.Build when a condition
	// template could not be rendered
	ErrQueryTemplate = errors.New("invalid condition template")

	// ErrInvalidConfig is returned when an option value is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// errScopePanicked marks a transaction scope that unwound through a panic.
	errScopePanicked = errors.New("transaction scope panicked")
)

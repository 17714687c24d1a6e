package driver

import "errors"

var (
	// ErrTransactionInProgress is returned when autocommit is enabled while a
	// transaction is still open on the connection.
	ErrTransactionInProgress = errors.New("transaction in progress")

	// ErrMissingParam is returned when SQL references a named parameter that
	// was not bound.
	ErrMissingParam = errors.New("missing named parameter")

	// ErrMalformedPlaceholder is returned for a %( placeholder that is not
	// terminated by )s.
	ErrMalformedPlaceholder = errors.New("malformed named placeholder")

	// ErrNoResult is returned when rows are fetched from a cursor that has
	// not executed a query.
	ErrNoResult = errors.New("cursor has no result set")

	// ErrCursorClosed is returned when a closed cursor is used.
	ErrCursorClosed = errors.New("cursor is closed")
)

package legalpg

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/legalpg/config"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrMissingAPIKey is returned when a component needs an API key that is
	// not configured
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrClientClosed is returned when a closed client is used
	ErrClientClosed = errors.New("client is closed")
)

// SourceError wraps a failure of one configured source
type SourceError struct {
	Op     string // Operation that failed
	Source string // Source name from the configuration
	Err    error  // Underlying error
}

// Error implements the error interface
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
}

// Unwrap returns the underlying error
func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError
func NewSourceError(op, source string, err error) *SourceError {
	return &SourceError{Op: op, Source: source, Err: err}
}

package sqlengine

import (
	"context"
	"fmt"
	"time"

	"github.com/youssefsiam38/legalpg/driver"
)

// DefaultAcquireTimeout bounds how long a checkout waits on an exhausted pool.
const DefaultAcquireTimeout = 30 * time.Second

// DataSource hands out exactly one connection for exactly one caller-defined
// scope and guarantees it is returned.
type DataSource interface {
	// WithConnection checks a connection out, runs fn with it and checks it
	// back in, whether fn returns normally, fails or panics.
	WithConnection(ctx context.Context, fn func(ctx context.Context, conn driver.Conn) error) error

	// Close releases every pooled connection.
	Close()
}

// PoolDataSource is a DataSource backed by a driver.Pool. It is the only
// component that calls Pool.Checkout and Pool.Checkin.
type PoolDataSource struct {
	pool           driver.Pool
	acquireTimeout time.Duration
	logger         driver.Logger
}

// DataSourceOption configures a PoolDataSource.
type DataSourceOption func(*PoolDataSource)

// WithAcquireTimeout sets how long a checkout may block on an exhausted pool
// before failing with ErrAcquireConnection. Zero waits as long as the
// caller's context allows.
func WithAcquireTimeout(d time.Duration) DataSourceOption {
	return func(s *PoolDataSource) {
		s.acquireTimeout = d
	}
}

// WithDataSourceLogger sets the logger used for check-in failures.
func WithDataSourceLogger(logger driver.Logger) DataSourceOption {
	return func(s *PoolDataSource) {
		s.logger = driver.OrNop(logger)
	}
}

// NewPoolDataSource creates a DataSource over pool.
func NewPoolDataSource(pool driver.Pool, opts ...DataSourceOption) *PoolDataSource {
	s := &PoolDataSource{
		pool:           pool,
		acquireTimeout: DefaultAcquireTimeout,
		logger:         driver.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithConnection implements DataSource.
func (s *PoolDataSource) WithConnection(ctx context.Context, fn func(ctx context.Context, conn driver.Conn) error) error {
	acquireCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
	}
	conn, err := s.pool.Checkout(acquireCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAcquireConnection, err)
	}

	defer func() {
		if err := s.pool.Checkin(conn); err != nil {
			s.logger.Error("failed to check in connection", "error", err)
		}
	}()

	return fn(ctx, conn)
}

// Close closes the pool.
func (s *PoolDataSource) Close() {
	s.pool.Close()
}

// Compile-time check
var _ DataSource = (*PoolDataSource)(nil)

package sqlgateway

import (
	"context"
	"time"

	"github.com/forumops/migrant/internal/retry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultConnectionAttempts    = 30
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 2 * time.Second
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

type Connector interface {
	Connect(ctx context.Context) (*sqlx.Conn, error)
	DriverName() string
	Close() error
}

// RetryingConnector hands out one exclusive connection, established with retries
type RetryingConnector struct {
	options *ConnectOptions
	db      *sqlx.DB
	conn    *sqlx.Conn
}

var _ Connector = (*RetryingConnector)(nil)

func MakeRetryingConnector(db *sqlx.DB, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &RetryingConnector{db: db, options: options}
}

func (c *RetryingConnector) DriverName() string {
	return c.db.DriverName()
}

func (c *RetryingConnector) Connect(ctx context.Context) (*sqlx.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	if c.options.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.MaxTimeout)
		defer cancel()
	}

	var conn *sqlx.Conn
	b := retry.Backoff{Step: c.options.RetryStep, Max: 10 * c.options.RetryStep, MaxAttempts: c.options.MaxAttempts}
	err := b.Do(ctx, func(ctx context.Context, attempt int) error {
		cn, err := c.db.Connx(ctx)
		if err != nil {
			return retry.Retryable(errors.Wrap(err, "could not establish DB connection"), attempt)
		}

		if err := cn.PingContext(ctx); err != nil {
			_ = cn.Close()
			return retry.Retryable(errors.Wrap(err, "db ping failed"), attempt)
		}

		conn = cn
		return nil
	})

	if err != nil {
		return nil, err
	}

	c.conn = conn

	return conn, nil
}

func (c *RetryingConnector) Close() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return errors.Wrap(err, "retrying connector could not close the connection")
		}
		c.conn = nil
	}

	return nil
}

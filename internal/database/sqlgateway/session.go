package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	ErrTxDeadlock    = errors.New("transaction deadlock occurred")
	ErrSessionClosed = errors.New("session is already closed")
)

// Unit is the body of one migration, tx is the only handle it may use
type Unit func(ctx context.Context, tx *sqlx.Tx) error

// Session is exclusive use of one connection for the whole invocation
type Session interface {
	// Executor reads the ledger and writes the run log outside of units
	Executor() Executor
	// Unit runs u atomically, on error nothing u did survives
	Unit(ctx context.Context, name string, u Unit) error
	// End finishes the session, commit is ignored by sessions
	// that have nothing left to commit
	End(ctx context.Context, commit bool) error
}

// connSession opens a transaction per unit
type connSession struct {
	conn   *sqlx.Conn
	txOpts *sql.TxOptions
}

var _ Session = (*connSession)(nil)

func (s *connSession) Executor() Executor {
	return s.conn
}

func (s *connSession) Unit(ctx context.Context, name string, u Unit) error {
	tx, err := s.conn.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return errors.Wrapf(err, "could not start transaction for [%s]", name)
	}

	if err := u(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return multierr.Append(err, errors.Wrapf(rbErr, "could not roll back [%s]", name))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDeadlock(errors.Wrapf(err, "could not commit [%s]", name))
	}

	return nil
}

func (s *connSession) End(context.Context, bool) error {
	return nil
}

// txSession keeps one transaction open for the whole invocation, every
// unit is a savepoint inside of it
type txSession struct {
	tx       *sqlx.Tx
	counter  int
	finished bool
}

var _ Session = (*txSession)(nil)

func beginTxSession(ctx context.Context, conn *sqlx.Conn, opts *sql.TxOptions) (*txSession, error) {
	tx, err := conn.BeginTxx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not start session transaction")
	}

	return &txSession{tx: tx}, nil
}

func (s *txSession) Executor() Executor {
	return s.tx
}

func (s *txSession) Unit(ctx context.Context, name string, u Unit) error {
	if s.finished {
		return ErrSessionClosed
	}

	s.counter++
	sp := fmt.Sprintf("migrant_sp_%d", s.counter)

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return errors.Wrapf(err, "could not create savepoint for [%s]", name)
	}

	if err := u(ctx, s.tx); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return multierr.Append(err, errors.Wrapf(rbErr, "could not roll back [%s] to its savepoint", name))
		}

		return err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return wrapDeadlock(errors.Wrapf(err, "could not release savepoint for [%s]", name))
	}

	return nil
}

func (s *txSession) End(_ context.Context, commit bool) error {
	if s.finished {
		return nil
	}

	s.finished = true

	if !commit {
		if err := s.tx.Rollback(); err != nil {
			return errors.Wrap(err, "could not roll back session transaction")
		}

		return nil
	}

	if err := s.tx.Commit(); err != nil {
		return wrapDeadlock(errors.Wrap(err, "could not commit session transaction"))
	}

	return nil
}

func wrapDeadlock(err error) error {
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "deadlock") {
		return errors.Wrap(ErrTxDeadlock, err.Error())
	}

	return err
}

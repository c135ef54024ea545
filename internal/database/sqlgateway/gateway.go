package sqlgateway

import (
	"context"
	"database/sql"
	"time"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Gateway struct {
	connector Connector
	dialect   Dialect
	lg        logger.Logger
	sessionTx bool
	txOpts    *sql.TxOptions
}

type GatewayOption func(*Gateway)

// WithSessionTransaction wraps every invocation in one outer transaction,
// ignored for dialects where schema changes commit implicitly
func WithSessionTransaction(enabled bool) GatewayOption {
	return func(g *Gateway) {
		g.sessionTx = enabled
	}
}

func WithIsolation(level sql.IsolationLevel) GatewayOption {
	return func(g *Gateway) {
		g.txOpts = &sql.TxOptions{Isolation: level}
	}
}

func New(connector Connector, dialect Dialect, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		connector: connector,
		dialect:   dialect,
		lg:        logger.NullLogger{},
	}

	for _, o := range opts {
		o(g)
	}

	return g
}

func (g *Gateway) SetLogger(lg logger.Logger) {
	g.lg = lg
}

func (g *Gateway) Dialect() Dialect {
	return g.dialect
}

func (g *Gateway) Close() error {
	return g.connector.Close()
}

// Open takes the exclusive connection, makes sure the ledger exists and
// starts a session in the configured transaction mode
func (g *Gateway) Open(ctx context.Context) (Session, error) {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to the database")
	}

	if err := g.EnsureTables(ctx, conn); err != nil {
		return nil, err
	}

	if !g.sessionTx {
		return &connSession{conn: conn, txOpts: g.txOpts}, nil
	}

	if !g.dialect.TransactionalDDL() {
		g.lg.Warnf("%s commits schema changes implicitly, falling back to a transaction per migration", g.dialect.Name())
		return &connSession{conn: conn, txOpts: g.txOpts}, nil
	}

	g.lg.Debugf("opening session transaction")

	return beginTxSession(ctx, conn, g.txOpts)
}

func (g *Gateway) EnsureTables(ctx context.Context, ex Executor) error {
	for _, q := range g.dialect.InitQueries() {
		g.lg.SQL(q)
		if _, err := ex.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "could not create migrations tables")
		}
	}

	return nil
}

func (g *Gateway) DropTables(ctx context.Context, ex Executor) error {
	for _, q := range g.dialect.DropQueries() {
		g.lg.SQL(q)
		if _, err := ex.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "could not drop migrations tables")
		}
	}

	return nil
}

func (g *Gateway) ShowTables(ctx context.Context, ex Executor) ([]string, error) {
	var tables []string
	if err := sqlx.SelectContext(ctx, ex, &tables, g.dialect.ShowTablesQuery()); err != nil {
		return nil, errors.Wrap(err, "could not list all tables")
	}

	return tables, nil
}

// Applied reads the ledger in apply order
func (g *Gateway) Applied(ctx context.Context, ex Executor) ([]database.Entry, error) {
	q := g.dialect.ReadQuery()
	g.lg.SQL(q)

	var entries []database.Entry
	if err := sqlx.SelectContext(ctx, ex, &entries, q); err != nil {
		return nil, errors.Wrap(err, "could not read the ledger")
	}

	return entries, nil
}

// RecordApplied inserts the ledger entry, losing a race against another
// runner surfaces as database.ErrDuplicateLedgerEntry
func (g *Gateway) RecordApplied(ctx context.Context, ex Executor, name string, at time.Time) error {
	q, args := g.dialect.InsertQuery(database.Entry{Name: name, AppliedAt: at})
	g.lg.SQL(q, args...)

	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		if g.dialect.IsUniqueViolation(err) {
			return errors.Wrapf(database.ErrDuplicateLedgerEntry, "%s: %v", name, err)
		}

		return errors.Wrapf(err, "could not insert migration [%s] into the ledger", name)
	}

	return nil
}

func (g *Gateway) RecordReverted(ctx context.Context, ex Executor, name string) error {
	q, args := g.dialect.RemoveQuery(name)
	g.lg.SQL(q, args...)

	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrapf(err, "could not remove migration [%s] from the ledger", name)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(database.ErrLedgerEntryNotFound, "%s", name)
	}

	return nil
}

func (g *Gateway) StartRun(ctx context.Context, ex Executor, r database.Run) error {
	q, args := g.dialect.StartRunQuery(r)
	g.lg.SQL(q, args...)

	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrapf(err, "could not log the start of [%s]", r.Name)
	}

	return nil
}

func (g *Gateway) FinishRun(ctx context.Context, ex Executor, r database.Run) error {
	q, args := g.dialect.FinishRunQuery(r)
	g.lg.SQL(q, args...)

	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrapf(err, "could not log the end of [%s]", r.Name)
	}

	return nil
}

// Runs reads the run log newest first
func (g *Gateway) Runs(ctx context.Context, ex Executor, limit int) ([]database.Run, error) {
	q, args := g.dialect.ReadRunsQuery(limit)
	g.lg.SQL(q, args...)

	var runs []database.Run
	if err := sqlx.SelectContext(ctx, ex, &runs, q, args...); err != nil {
		return nil, errors.Wrap(err, "could not read the run log")
	}

	return runs, nil
}

// Package migrant applies and reverts ordered, transactional migrations
// against a forum database and keeps a ledger of what has been applied.
package migrant

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/logger"
	"github.com/forumops/migrant/internal/metrics"
	"github.com/forumops/migrant/internal/source"
	"github.com/forumops/migrant/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const DefaultHistoryLimit = 50

type (
	CloserFunc func() error

	Direction   = database.Direction
	LedgerEntry = database.Entry
	Run         = database.Run
)

const (
	DirectionUp   = database.Up
	DirectionDown = database.Down
)

// Hook runs inside the unit of every migration, around its body
type Hook func(ctx context.Context, tx migration.Tx, d *migration.Definition, direction Direction) error

type Hooks struct {
	BeforeEach Hook
	AfterEach  Hook
}

type databaseConfig struct {
	db      *sqlx.DB
	connect *sqlgateway.ConnectOptions
	dialect func(tables database.CommonOptions) sqlgateway.Dialect
}

type Migrator struct {
	lg          logger.Logger
	registry    *migration.Registry
	selectors   []source.Selector
	creators    map[source.Kind]source.Creator
	database    *databaseConfig
	tables      database.CommonOptions
	connectOpts *sqlgateway.ConnectOptions
	gatewayOpts []sqlgateway.GatewayOption
	gateway     *sqlgateway.Gateway
	deferred    []OptionFunc
	closerFns   []CloserFunc
	clock       clock.Clock
	metrics     *metrics.Recorder
	hooks       Hooks
	state       atomic.Int32
	loaded      bool
	loadErr     error
}

// NewMigrator creates a migrator from option callbacks. Without a database
// option only Create is usable, every other operation returns
// ErrGatewayNotInitialized.
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = logger.NullLogger{}
	m.clock = clock.New()
	m.creators = make(map[source.Kind]source.Creator)

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	// sources are built last so that they pick up the final logger
	for _, oFunc := range m.deferred {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	if m.registry == nil {
		m.registry = migration.NewRegistry()
	}

	if m.database != nil {
		connectOpts := m.database.connect
		if m.connectOpts != nil {
			connectOpts = m.connectOpts
		}

		connector := sqlgateway.MakeRetryingConnector(m.database.db, connectOpts)
		m.gateway = sqlgateway.New(connector, m.database.dialect(m.tables), m.gatewayOpts...)
		m.gateway.SetLogger(m.lg)
		m.closerFns = append(m.closerFns, m.gateway.Close)
	}

	return m, m.close, nil
}

func (m *Migrator) State() State {
	return State(m.state.Load())
}

func (m *Migrator) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.lg.Debugf("%s -> %s", prev, s)
	}
}

func (m *Migrator) Registry() *migration.Registry {
	return m.registry
}

// Up applies pending migrations in order, returning the names of those
// that were applied even when a later one fails
func (m *Migrator) Up(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs)

	definitions, err := m.definitions(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	var migrated []string
	err = m.withSession(ctx, func(s sqlgateway.Session) error {
		applied, err := m.diff(ctx, s, definitions)
		if err != nil {
			return err
		}

		scheduled, err := database.ScheduleForMigration(definitions, applied, act.plan())
		if err != nil {
			return err
		}

		if len(scheduled) == 0 {
			return ErrNothingToMigrate
		}

		m.setState(StateExecuting)

		for _, d := range scheduled {
			err := m.execute(ctx, s, d, DirectionUp, d.Up, func(ctx context.Context, tx *sqlx.Tx) error {
				return m.gateway.RecordApplied(ctx, tx, d.Name, m.clock.Now().UTC())
			})

			if err != nil {
				return err
			}

			migrated = append(migrated, d.Name)
			m.lg.Successf("migrated [%s]", d.Name)
		}

		return nil
	})

	if err != nil && !errors.Is(err, ErrNothingToMigrate) {
		m.lg.Error(err)
	}

	return migrated, err
}

// Down reverts the most recent migration, or everything down to and
// including the target, newest first
func (m *Migrator) Down(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs)

	definitions, err := m.definitions(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	var reverted []string
	err = m.withSession(ctx, func(s sqlgateway.Session) error {
		applied, err := m.diff(ctx, s, definitions)
		if err != nil {
			return err
		}

		scheduled, err := database.ScheduleForRollback(definitions, applied, act.plan())
		if err != nil {
			return err
		}

		if len(scheduled) == 0 {
			return ErrNothingToRollback
		}

		if irreversible := scheduled.Irreversible(); len(irreversible) > 0 {
			return errors.Wrapf(ErrIrreversibleMigration, "%s", strings.Join(irreversible.Names(), ", "))
		}

		m.setState(StateExecuting)

		for _, d := range scheduled {
			err := m.execute(ctx, s, d, DirectionDown, d.Down, func(ctx context.Context, tx *sqlx.Tx) error {
				return m.gateway.RecordReverted(ctx, tx, d.Name)
			})

			if err != nil {
				return err
			}

			reverted = append(reverted, d.Name)
			m.lg.Successf("rolled back [%s]", d.Name)
		}

		return nil
	})

	if err != nil && !errors.Is(err, ErrNothingToRollback) {
		m.lg.Error(err)
	}

	return reverted, err
}

// Pending lists registered migrations missing from the ledger, in the order Up would apply them
func (m *Migrator) Pending(ctx context.Context) (migration.Definitions, error) {
	definitions, err := m.definitions(ctx)
	if err != nil {
		return nil, err
	}

	var pending migration.Definitions
	err = m.withSession(ctx, func(s sqlgateway.Session) error {
		applied, err := m.diff(ctx, s, definitions)
		if err != nil {
			return err
		}

		pending, err = database.ScheduleForMigration(definitions, applied, database.Plan{})
		return err
	})

	return pending, err
}

// Executed lists the ledger in apply order, including entries no
// registered migration knows about
func (m *Migrator) Executed(ctx context.Context) ([]LedgerEntry, error) {
	definitions, err := m.definitions(ctx)
	if err != nil {
		return nil, err
	}

	var applied []LedgerEntry
	err = m.withSession(ctx, func(s sqlgateway.Session) error {
		applied, err = m.diff(ctx, s, definitions)
		return err
	})

	return applied, err
}

// Rerun executes the up of an idempotent migration again and records it
// in the ledger if it was missing
func (m *Migrator) Rerun(ctx context.Context, name string) error {
	if _, err := m.definitions(ctx); err != nil {
		return err
	}

	d, ok := m.registry.Get(name)
	if !ok {
		return errors.Wrapf(ErrUnknownTarget, "%s", name)
	}

	if !d.Idempotent {
		return errors.Wrapf(ErrNotIdempotent, "%s", name)
	}

	err := m.withSession(ctx, func(s sqlgateway.Session) error {
		applied, err := m.gateway.Applied(ctx, s.Executor())
		if err != nil {
			return err
		}

		_, done := database.AppliedNames(applied)[name]

		m.setState(StateExecuting)

		return m.execute(ctx, s, d, DirectionUp, d.Up, func(ctx context.Context, tx *sqlx.Tx) error {
			if done {
				return nil
			}

			return m.gateway.RecordApplied(ctx, tx, d.Name, m.clock.Now().UTC())
		})
	})

	if err != nil {
		m.lg.Error(err)
		return err
	}

	m.lg.Successf("reran [%s]", name)

	return nil
}

// History returns the newest runs first
func (m *Migrator) History(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var runs []Run
	err := m.withSession(ctx, func(s sqlgateway.Session) error {
		var err error
		runs, err = m.gateway.Runs(ctx, s.Executor(), limit)
		return err
	})

	return runs, err
}

// Create scaffolds a new migration of the given kind, it never touches the database
func (m *Migrator) Create(name string, kind source.Kind) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrMigrationNameRequired
	}

	if _, err := m.definitions(context.Background()); err != nil {
		return "", err
	}
	defer m.setState(StateIdle)

	if m.registry.Has(name) {
		return "", errors.Wrapf(ErrMigrationAlreadyExists, "%s is already registered", name)
	}

	creator, ok := m.creators[kind]
	if !ok {
		return "", errors.Wrapf(ErrNoCreator, "%s", kind)
	}

	path, err := creator.Create(name, m.clock.Now())
	if err != nil {
		if errors.Is(err, source.ErrAlreadyExists) {
			return "", errors.Wrap(ErrMigrationAlreadyExists, err.Error())
		}

		return "", err
	}

	return path, nil
}

// definitions registers whatever the selectors yield once all of them
// succeeded and returns the registry in global order
func (m *Migrator) definitions(ctx context.Context) (migration.Definitions, error) {
	m.setState(StateLoading)

	if !m.loaded {
		var factories []migration.Factory
		for _, s := range m.selectors {
			selected, err := s.Select(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "could not load migrations")
			}

			factories = append(factories, selected...)
		}

		// a failed registration leaves part of the factories behind, so it is not retried
		m.loaded = true
		m.loadErr = m.registry.RegisterFactories(factories...)
	}

	if m.loadErr != nil {
		return nil, m.loadErr
	}

	return m.registry.All(), nil
}

// diff reads the ledger and warns about entries nothing in the registry knows
func (m *Migrator) diff(ctx context.Context, s sqlgateway.Session, definitions migration.Definitions) ([]LedgerEntry, error) {
	m.setState(StateDiffing)

	applied, err := m.gateway.Applied(ctx, s.Executor())
	if err != nil {
		return nil, err
	}

	database.SortApplied(definitions, applied)

	unknown := database.UnknownEntries(definitions, applied)
	for _, e := range unknown {
		m.lg.Warnf("ledger entry [%s] applied at %s has no registered migration", e.Name, e.AppliedAt.Format(time.RFC3339))
	}

	m.metrics.UnknownEntries(len(unknown))
	m.metrics.Pending(len(definitions) - (len(applied) - len(unknown)))

	return applied, nil
}

// withSession runs f on an exclusive session. The session is committed
// when f succeeds or fails inside a migration unit, so the units that
// made it stay applied. Any other failure rolls it back.
func (m *Migrator) withSession(ctx context.Context, f func(s sqlgateway.Session) error) error {
	if m.gateway == nil {
		return ErrGatewayNotInitialized
	}

	s, err := m.gateway.Open(ctx)
	if err != nil {
		m.setState(StateRolledBack)
		return err
	}

	err = f(s)

	commit := err == nil ||
		IsExecutionError(err) ||
		errors.Is(err, ErrNothingToMigrate) ||
		errors.Is(err, ErrNothingToRollback)

	if endErr := s.End(ctx, commit); endErr != nil {
		err = multierr.Append(err, endErr)
		commit = false
	}

	if commit && !IsExecutionError(err) {
		m.setState(StateCommitted)
	} else {
		m.setState(StateRolledBack)
	}

	return err
}

// execute runs one migration unit: hooks, body and ledger write, and logs
// the attempt in the run log outside of the unit
func (m *Migrator) execute(
	ctx context.Context,
	s sqlgateway.Session,
	d *migration.Definition,
	direction Direction,
	body migration.Func,
	ledger sqlgateway.Unit,
) error {
	run := Run{
		ID:        newRunID(),
		Name:      d.Name,
		Direction: direction,
		StartedAt: m.clock.Now().UTC(),
	}

	if err := m.gateway.StartRun(ctx, s.Executor(), run); err != nil {
		return err
	}

	m.lg.Debugf("running [%s] %s from %s", d.Name, direction, d.Source)

	err := s.Unit(ctx, d.Name, func(ctx context.Context, tx *sqlx.Tx) error {
		if m.hooks.BeforeEach != nil {
			if err := m.hooks.BeforeEach(ctx, tx, d, direction); err != nil {
				return errors.Wrap(err, "before each hook failed")
			}
		}

		if err := body(ctx, tx); err != nil {
			return err
		}

		if m.hooks.AfterEach != nil {
			if err := m.hooks.AfterEach(ctx, tx, d, direction); err != nil {
				return errors.Wrap(err, "after each hook failed")
			}
		}

		return ledger(ctx, tx)
	})

	finished := m.clock.Now().UTC()
	succeeded := err == nil
	run.FinishedAt, run.Succeeded = &finished, &succeeded
	if err != nil {
		msg := err.Error()
		run.Error = &msg
	}

	m.metrics.Execution(direction.String(), d.Name, finished.Sub(run.StartedAt), err)

	if finishErr := m.gateway.FinishRun(ctx, s.Executor(), run); finishErr != nil {
		if err == nil {
			return finishErr
		}

		m.lg.Error(finishErr)
	}

	if err != nil {
		return &ExecutionError{Name: d.Name, Direction: direction, Err: err}
	}

	return nil
}

func (m *Migrator) close() error {
	var err error
	for i := len(m.closerFns) - 1; i >= 0; i-- {
		err = multierr.Append(err, m.closerFns[i]())
	}

	if err != nil {
		m.lg.Error(err)
	}

	return err
}

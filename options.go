package migrant

import (
	"github.com/benbjohnson/clock"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/metrics"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

type OptionFunc func(*Migrator) error

// UseRegistry makes the migrator run the definitions of r, sources add to it
func UseRegistry(r *migration.Registry) OptionFunc {
	return func(m *Migrator) error {
		if r == nil {
			return errors.New("registry must not be nil")
		}

		m.registry = r
		return nil
	}
}

// UseMigrations registers Go migrations, a name collision fails right away
func UseMigrations(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		if m.registry == nil {
			m.registry = migration.NewRegistry()
		}

		return m.registry.RegisterFactories(factories...)
	}
}

func UseClock(clk clock.Clock) OptionFunc {
	return func(m *Migrator) error {
		m.clock = clk
		return nil
	}
}

func UseMetrics(r *metrics.Recorder) OptionFunc {
	return func(m *Migrator) error {
		m.metrics = r
		return nil
	}
}

func UseHooks(h Hooks) OptionFunc {
	return func(m *Migrator) error {
		m.hooks = h
		return nil
	}
}

// UseSessionTransaction runs every invocation in one outer transaction with
// a savepoint per migration. Dialects without transactional DDL ignore it.
func UseSessionTransaction(enabled bool) OptionFunc {
	return func(m *Migrator) error {
		m.gatewayOpts = append(m.gatewayOpts, sqlgateway.WithSessionTransaction(enabled))
		return nil
	}
}

// UseMigrationsTable renames the ledger and the run log tables, empty
// names keep the defaults
func UseMigrationsTable(migrationsTable, runsTable string) OptionFunc {
	return func(m *Migrator) error {
		m.tables.MigrationsTable = migrationsTable
		m.tables.RunsTable = runsTable
		return nil
	}
}

// UseConnectOptions overrides the connection retry settings of any dialect
func UseConnectOptions(opts *sqlgateway.ConnectOptions) OptionFunc {
	return func(m *Migrator) error {
		m.connectOpts = opts
		return nil
	}
}

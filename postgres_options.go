package migrant

import (
	"time"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/database/sqlgateway/postgres"
	"github.com/jmoiron/sqlx"
)

type PostgresOptionFunc func(*postgres.Options, *sqlgateway.ConnectOptions)

func UsePostgres(db *sqlx.DB, options ...PostgresOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		pgOpts := &postgres.Options{}
		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(pgOpts, connectOpts)
		}

		m.database = &databaseConfig{
			db:      db,
			connect: connectOpts,
			dialect: func(tables database.CommonOptions) sqlgateway.Dialect {
				opts := *pgOpts
				opts.CommonOptions = mergeTables(opts.CommonOptions, tables)
				return postgres.NewDialect(opts)
			},
		}

		return nil
	}
}

func WithPostgresMigrationTable(migrationTable string) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.MigrationsTable = migrationTable
	}
}

// WithPostgresSchema puts the ledger and the run log into schema
func WithPostgresSchema(schema string) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.Schema = schema
	}
}

func WithPostgresConnectionTimeout(timeout time.Duration) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithPostgresMaxConnectionAttempts(attempts int) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

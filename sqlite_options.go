package migrant

import (
	"time"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/database/sqlgateway/sqlite"
	"github.com/jmoiron/sqlx"
)

type SqliteOptionFunc func(*sqlite.Options, *sqlgateway.ConnectOptions)

func UseSqlite(db *sqlx.DB, options ...SqliteOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		sqliteOpts := &sqlite.Options{}
		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(sqliteOpts, connectOpts)
		}

		m.database = &databaseConfig{
			db:      db,
			connect: connectOpts,
			dialect: func(tables database.CommonOptions) sqlgateway.Dialect {
				opts := *sqliteOpts
				opts.CommonOptions = mergeTables(opts.CommonOptions, tables)
				return sqlite.NewDialect(opts)
			},
		}

		return nil
	}
}

func WithSqliteMaxConnectionAttempts(attempts int) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithSqliteConnectionTimeout(timeout time.Duration) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithSqliteMigrationTable(migrationTable string) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		sqliteOpts.MigrationsTable = migrationTable
	}
}

// mergeTables lets names given through UseMigrationsTable win over
// the ones given to a dialect
func mergeTables(dialect, global database.CommonOptions) database.CommonOptions {
	if global.MigrationsTable != "" {
		dialect.MigrationsTable = global.MigrationsTable
	}

	if global.RunsTable != "" {
		dialect.RunsTable = global.RunsTable
	}

	return dialect
}

package migrant

import (
	"time"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/database/sqlgateway/mysql"
	"github.com/jmoiron/sqlx"
)

type MySQLOptionFunc func(*mysql.Options, *sqlgateway.ConnectOptions)

// UseMySQL runs against MySQL, schema changes there commit implicitly so
// every migration gets its own transaction whatever the session mode
func UseMySQL(db *sqlx.DB, options ...MySQLOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		mysqlOpts := &mysql.Options{}
		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(mysqlOpts, connectOpts)
		}

		m.database = &databaseConfig{
			db:      db,
			connect: connectOpts,
			dialect: func(tables database.CommonOptions) sqlgateway.Dialect {
				opts := *mysqlOpts
				opts.CommonOptions = mergeTables(opts.CommonOptions, tables)
				return mysql.NewDialect(opts)
			},
		}

		return nil
	}
}

func WithMySQLMigrationTable(migrationTable string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.MigrationsTable = migrationTable
	}
}

func WithMySQLCharset(charset string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.Charset = charset
	}
}

func WithMySQLConnectionTimeout(timeout time.Duration) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithMySQLMaxConnectionAttempts(attempts int) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

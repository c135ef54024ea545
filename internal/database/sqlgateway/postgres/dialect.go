package postgres

import (
	"fmt"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

type Dialect struct {
	migrationsTable string
	runsTable       string
	schema          string
}

type Options struct {
	database.CommonOptions
	Schema string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(opts Options) *Dialect {
	opts.Defaults()
	if opts.Schema == "" {
		opts.Schema = "public"
	}

	return &Dialect{migrationsTable: opts.MigrationsTable, runsTable: opts.RunsTable, schema: opts.Schema}
}

func (Dialect) Name() string {
	return "postgres"
}

func (Dialect) TransactionalDDL() bool {
	return true
}

func (d Dialect) InitQueries() []string {
	const createLedgerSQL = `CREATE TABLE IF NOT EXISTS %s (
			migration_name TEXT NOT NULL PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL
		);`

	const createRunsSQL = `CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			migration_name TEXT NOT NULL,
			direction VARCHAR(4) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NULL,
			succeeded BOOLEAN NULL,
			error TEXT NULL
		);`

	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", d.schema),
		fmt.Sprintf(createLedgerSQL, d.table(d.migrationsTable)),
		fmt.Sprintf(createRunsSQL, d.table(d.runsTable)),
	}
}

func (d Dialect) DropQueries() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.table(d.migrationsTable)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.table(d.runsTable)),
	}
}

func (d Dialect) ShowTablesQuery() string {
	const showSQL = "SELECT tablename AS table_name FROM pg_catalog.pg_tables WHERE schemaname = '%s' ORDER BY tablename;"
	return fmt.Sprintf(showSQL, d.schema)
}

func (d Dialect) InsertQuery(e database.Entry) (string, []interface{}) {
	const insertSQL = "INSERT INTO %s (migration_name, applied_at) VALUES ($1, $2);"
	return fmt.Sprintf(insertSQL, d.table(d.migrationsTable)), []interface{}{e.Name, e.AppliedAt.UTC()}
}

func (d Dialect) RemoveQuery(name string) (string, []interface{}) {
	const removeSQL = "DELETE FROM %s WHERE migration_name = $1;"
	return fmt.Sprintf(removeSQL, d.table(d.migrationsTable)), []interface{}{name}
}

func (d Dialect) ReadQuery() string {
	const readSQL = "SELECT migration_name, applied_at FROM %s ORDER BY applied_at ASC, migration_name ASC;"
	return fmt.Sprintf(readSQL, d.table(d.migrationsTable))
}

func (d Dialect) StartRunQuery(r database.Run) (string, []interface{}) {
	const insertSQL = "INSERT INTO %s (id, migration_name, direction, started_at) VALUES ($1, $2, $3, $4);"
	return fmt.Sprintf(insertSQL, d.table(d.runsTable)), []interface{}{r.ID, r.Name, string(r.Direction), r.StartedAt.UTC()}
}

func (d Dialect) FinishRunQuery(r database.Run) (string, []interface{}) {
	const updateSQL = "UPDATE %s SET finished_at = $1, succeeded = $2, error = $3 WHERE id = $4;"
	return fmt.Sprintf(updateSQL, d.table(d.runsTable)), []interface{}{r.FinishedAt, r.Succeeded, r.Error, r.ID}
}

func (d Dialect) ReadRunsQuery(limit int) (string, []interface{}) {
	const readSQL = `SELECT id, migration_name, direction, started_at, finished_at, succeeded, error
		FROM %s ORDER BY started_at DESC, id DESC LIMIT $1;`
	return fmt.Sprintf(readSQL, d.table(d.runsTable)), []interface{}{limit}
}

func (d Dialect) table(name string) string {
	return d.schema + "." + name
}

func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == uniqueViolation
}

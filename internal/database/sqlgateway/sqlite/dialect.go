package sqlite

import (
	"fmt"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type Dialect struct {
	migrationsTable string
	runsTable       string
}

type Options struct {
	database.CommonOptions
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(opts Options) *Dialect {
	opts.Defaults()
	return &Dialect{migrationsTable: opts.MigrationsTable, runsTable: opts.RunsTable}
}

func (Dialect) Name() string {
	return "sqlite"
}

func (Dialect) TransactionalDDL() bool {
	return true
}

func (d Dialect) InitQueries() []string {
	const createLedgerSQL = `CREATE TABLE IF NOT EXISTS %s (
			migration_name VARCHAR(255) NOT NULL PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		);`

	const createRunsSQL = `CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NULL,
			succeeded BOOLEAN NULL,
			error TEXT NULL
		);`

	return []string{
		fmt.Sprintf(createLedgerSQL, d.migrationsTable),
		fmt.Sprintf(createRunsSQL, d.runsTable),
	}
}

func (d Dialect) DropQueries() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.migrationsTable),
		fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.runsTable),
	}
}

func (Dialect) ShowTablesQuery() string {
	return "SELECT name AS table_name FROM sqlite_master WHERE type='table' ORDER BY name;"
}

func (d Dialect) InsertQuery(e database.Entry) (string, []interface{}) {
	const insertSQL = "INSERT INTO %s (migration_name, applied_at) VALUES (?, ?);"
	return fmt.Sprintf(insertSQL, d.migrationsTable), []interface{}{e.Name, e.AppliedAt.UTC()}
}

func (d Dialect) RemoveQuery(name string) (string, []interface{}) {
	const removeSQL = "DELETE FROM %s WHERE migration_name = ?;"
	return fmt.Sprintf(removeSQL, d.migrationsTable), []interface{}{name}
}

func (d Dialect) ReadQuery() string {
	const readSQL = "SELECT migration_name, applied_at FROM %s ORDER BY applied_at ASC, migration_name ASC;"
	return fmt.Sprintf(readSQL, d.migrationsTable)
}

func (d Dialect) StartRunQuery(r database.Run) (string, []interface{}) {
	const insertSQL = "INSERT INTO %s (id, migration_name, direction, started_at) VALUES (?, ?, ?, ?);"
	return fmt.Sprintf(insertSQL, d.runsTable), []interface{}{r.ID, r.Name, string(r.Direction), r.StartedAt.UTC()}
}

func (d Dialect) FinishRunQuery(r database.Run) (string, []interface{}) {
	const updateSQL = "UPDATE %s SET finished_at = ?, succeeded = ?, error = ? WHERE id = ?;"
	return fmt.Sprintf(updateSQL, d.runsTable), []interface{}{r.FinishedAt, r.Succeeded, r.Error, r.ID}
}

func (d Dialect) ReadRunsQuery(limit int) (string, []interface{}) {
	const readSQL = `SELECT id, migration_name, direction, started_at, finished_at, succeeded, error
		FROM %s ORDER BY started_at DESC, id DESC LIMIT ?;`
	return fmt.Sprintf(readSQL, d.runsTable), []interface{}{limit}
}

func (Dialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}

	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

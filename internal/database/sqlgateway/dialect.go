package sqlgateway

import (
	"github.com/forumops/migrant/internal/database"
	"github.com/jmoiron/sqlx"
)

// Executor is anything the ledger can read from and write to:
// the session connection, the outer transaction or a migration transaction
type Executor interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type Dialect interface {
	Name() string
	// TransactionalDDL reports whether schema changes can be rolled back,
	// a session transaction is pointless otherwise
	TransactionalDDL() bool
	InitQueries() []string
	DropQueries() []string
	ShowTablesQuery() string
	InsertQuery(e database.Entry) (string, []interface{})
	RemoveQuery(name string) (string, []interface{})
	ReadQuery() string
	StartRunQuery(r database.Run) (string, []interface{})
	FinishRunQuery(r database.Run) (string, []interface{})
	ReadRunsQuery(limit int) (string, []interface{})
	IsUniqueViolation(err error) bool
}

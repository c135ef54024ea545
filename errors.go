package migrant

import (
	"fmt"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

var (
	ErrGatewayNotInitialized  = errors.New("database gateway has not been initialized")
	ErrIrreversibleMigration  = errors.New("migration cannot be reverted, it has no down")
	ErrNotIdempotent          = errors.New("migration is not idempotent and cannot be rerun")
	ErrMigrationAlreadyExists = errors.New("migration already exists")
	ErrMigrationNameRequired  = errors.New("migration name is required")
	ErrNoCreator              = errors.New("no source can create migrations of this kind")

	ErrNothingToMigrate     = database.ErrNothingToMigrate
	ErrNothingToRollback    = database.ErrNothingToRollback
	ErrUnknownTarget        = database.ErrUnknownTarget
	ErrDuplicateLedgerEntry = database.ErrDuplicateLedgerEntry
	ErrDuplicateMigration   = migration.ErrDuplicateMigration
)

// ExecutionError attaches the failing migration to whatever its body,
// hooks or ledger write returned
type ExecutionError struct {
	Name      string
	Direction Direction
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration [%s] failed going %s: %v", e.Name, e.Direction, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError reports whether err came out of a migration unit
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}

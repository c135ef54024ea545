package database

import (
	"sort"
	"time"

	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

var (
	ErrNothingToMigrate     = errors.New("nothing to migrate")
	ErrNothingToRollback    = errors.New("nothing to roll back")
	ErrUnknownTarget        = errors.New("target migration is not registered")
	ErrDuplicateLedgerEntry = errors.New("migration is already recorded in the ledger")
	ErrLedgerEntryNotFound  = errors.New("migration is not recorded in the ledger")
)

const (
	DefaultMigrationsTable = "migrations"
	DefaultRunsTable       = "migration_runs"

	OperationMigrate  = "migrate"
	OperationRollback = "rollback"
	OperationRerun    = "rerun"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func (d Direction) String() string {
	return string(d)
}

type CommonOptions struct {
	MigrationsTable string
	RunsTable       string
}

func (o *CommonOptions) Defaults() {
	if o.MigrationsTable == "" {
		o.MigrationsTable = DefaultMigrationsTable
	}

	if o.RunsTable == "" {
		o.RunsTable = DefaultRunsTable
	}
}

// Entry is one row of the ledger
type Entry struct {
	Name      string    `db:"migration_name"`
	AppliedAt time.Time `db:"applied_at"`
}

// Run is one attempt to execute a migration, successful or not
type Run struct {
	ID         string     `db:"id"`
	Name       string     `db:"migration_name"`
	Direction  Direction  `db:"direction"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Succeeded  *bool      `db:"succeeded"`
	Error      *string    `db:"error"`
}

// Plan narrows down what an operation is allowed to touch.
// Target is inclusive, Steps below one means no limit.
type Plan struct {
	Target string
	Steps  int
}

func AppliedNames(entries []Entry) map[string]Entry {
	result := make(map[string]Entry, len(entries))
	for _, e := range entries {
		result[e.Name] = e
	}
	return result
}

// ScheduleForMigration computes the pending set in global order and applies the plan to it
func ScheduleForMigration(definitions migration.Definitions, applied []Entry, p Plan) (migration.Definitions, error) {
	var target *migration.Definition
	if p.Target != "" {
		target = find(definitions, p.Target)
		if target == nil {
			return nil, errors.Wrapf(ErrUnknownTarget, "%s", p.Target)
		}
	}

	done := AppliedNames(applied)
	var scheduled migration.Definitions

	for i := range definitions {
		if _, ok := done[definitions[i].Name]; ok {
			continue
		}

		if target != nil && target.Before(definitions[i]) {
			break
		}

		if p.Steps > 0 && len(scheduled) >= p.Steps {
			break
		}

		scheduled = append(scheduled, definitions[i])
	}

	return scheduled, nil
}

// ScheduleForRollback returns applied definitions newest first. Without a
// target only the most recent one is scheduled, with a target everything down
// to and including it.
func ScheduleForRollback(definitions migration.Definitions, applied []Entry, p Plan) (migration.Definitions, error) {
	var target *migration.Definition
	if p.Target != "" {
		target = find(definitions, p.Target)
		if target == nil {
			return nil, errors.Wrapf(ErrUnknownTarget, "%s", p.Target)
		}
	}

	steps := p.Steps
	if steps <= 0 && target == nil {
		steps = 1
	}

	done := AppliedNames(applied)
	var scheduled migration.Definitions

	for i := len(definitions) - 1; i >= 0; i-- {
		if _, ok := done[definitions[i].Name]; !ok {
			continue
		}

		if target != nil && definitions[i].Before(target) {
			break
		}

		if steps > 0 && len(scheduled) >= steps {
			break
		}

		scheduled = append(scheduled, definitions[i])
	}

	return scheduled, nil
}

// SortApplied orders the ledger by apply time. Entries applied at the same
// instant follow the global order of their definitions, unknown ones go
// last by name.
func SortApplied(definitions migration.Definitions, applied []Entry) {
	position := make(map[string]int, len(definitions))
	for i := range definitions {
		position[definitions[i].Name] = i
	}

	sort.SliceStable(applied, func(i, j int) bool {
		a, b := applied[i], applied[j]
		if !a.AppliedAt.Equal(b.AppliedAt) {
			return a.AppliedAt.Before(b.AppliedAt)
		}

		pa, aKnown := position[a.Name]
		pb, bKnown := position[b.Name]
		switch {
		case aKnown && bKnown:
			return pa < pb
		case aKnown != bKnown:
			return aKnown
		default:
			return a.Name < b.Name
		}
	})
}

// UnknownEntries returns ledger entries that have no definition in the registry
func UnknownEntries(definitions migration.Definitions, applied []Entry) []Entry {
	known := make(map[string]struct{}, len(definitions))
	for i := range definitions {
		known[definitions[i].Name] = struct{}{}
	}

	var result []Entry
	for _, e := range applied {
		if _, ok := known[e.Name]; !ok {
			result = append(result, e)
		}
	}

	return result
}

func find(definitions migration.Definitions, name string) *migration.Definition {
	for i := range definitions {
		if definitions[i].Name == name {
			return definitions[i]
		}
	}

	return nil
}

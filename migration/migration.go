package migration

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrInvalidDateWritten = errors.New("invalid date written")
	ErrInvalidDefinition  = errors.New("invalid migration definition")
)

// Date layouts accepted for DateWritten, most specific first
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"20060102T150405",
	"2006-01-02",
	"20060102",
}

const (
	SourceGo = "go"

	DateLayout     = "2006-01-02"
	DatetimeLayout = "20060102T150405"
)

type (
	// Tx is the handle every migration body receives. It is the transaction
	// (or savepoint) the runner opened for that migration and nothing else.
	Tx interface {
		sqlx.ExtContext
	}

	Func func(ctx context.Context, tx Tx) error

	Definition struct {
		Name        string
		DateWritten time.Time
		Idempotent  bool
		Up          Func
		Down        Func
		Source      string
	}

	Factory func() (*Definition, error)
)

// New creates a factory for a migration written in Go, dateWritten is
// parsed with one of the supported layouts
func New(name, dateWritten string, idempotent bool, up, down Func) Factory {
	return func() (*Definition, error) {
		dt, err := ParseDate(dateWritten)
		if err != nil {
			return nil, errors.Wrapf(err, "migration [%s]", name)
		}

		d := &Definition{
			Name:        name,
			DateWritten: dt,
			Idempotent:  idempotent,
			Up:          up,
			Down:        down,
			Source:      SourceGo,
		}

		if err := d.Validate(); err != nil {
			return nil, err
		}

		return d, nil
	}
}

// NewFromScripts creates a factory for a migration made of plain SQL statements,
// an empty down list makes the migration forward-only
func NewFromScripts(name, dateWritten string, idempotent bool, up, down []string) Factory {
	var downFn Func
	if len(down) > 0 {
		downFn = Exec(down...)
	}

	return New(name, dateWritten, idempotent, Exec(up...), downFn)
}

// Exec returns a Func executing each statement in order on the given tx
func Exec(statements ...string) Func {
	return func(ctx context.Context, tx Tx) error {
		for _, script := range statements {
			if strings.TrimSpace(script) == "" {
				continue
			}

			if _, err := tx.ExecContext(ctx, script); err != nil {
				return errors.Wrapf(err, "could not execute script [%s]", script)
			}
		}

		return nil
	}
}

func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.Wrap(ErrInvalidDefinition, "missing name")
	}

	if d.DateWritten.IsZero() {
		return errors.Wrapf(ErrInvalidDefinition, "migration [%s] is missing date written", d.Name)
	}

	if d.Up == nil {
		return errors.Wrapf(ErrInvalidDefinition, "migration [%s] is missing up", d.Name)
	}

	return nil
}

func (d *Definition) Reversible() bool {
	return d.Down != nil
}

// Key is a sortable, human readable identifier of the definition
func (d *Definition) Key() string {
	return CreateKey(d.DateWritten, d.Name)
}

// Before reports whether d sorts before other in the global order
func (d *Definition) Before(other *Definition) bool {
	if d.DateWritten.Equal(other.DateWritten) {
		return d.Name < other.Name
	}

	return d.DateWritten.Before(other.DateWritten)
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Wrap(ErrInvalidDateWritten, "empty")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errors.Wrapf(ErrInvalidDateWritten, "%s", s)
}

func CreateKey(dt time.Time, name string) string {
	var result bytes.Buffer
	result.WriteString(dt.UTC().Format(DatetimeLayout))
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(name), " ", "_", -1))
	return result.String()
}

type Definitions []*Definition

func NewDefinitions(factories ...Factory) (Definitions, error) {
	definitions := make(Definitions, len(factories))

	for i := range factories {
		d, err := factories[i]()
		if err != nil {
			return nil, err
		}

		definitions[i] = d
	}

	return definitions, nil
}

func (ds Definitions) Names() (result []string) {
	for i := range ds {
		result = append(result, ds[i].Name)
	}
	return result
}

func (ds Definitions) Len() int {
	return len(ds)
}

func (ds Definitions) Less(i, j int) bool {
	return ds[i].Before(ds[j])
}

func (ds Definitions) Swap(i, j int) {
	ds[i], ds[j] = ds[j], ds[i]
}

// Irreversible lists the definitions lacking a down
func (ds Definitions) Irreversible() Definitions {
	var result Definitions
	for i := range ds {
		if !ds[i].Reversible() {
			result = append(result, ds[i])
		}
	}
	return result
}

func (ds Definitions) Reverse() Definitions {
	result := make(Definitions, len(ds))
	for i := range ds {
		result[len(ds)-1-i] = ds[i]
	}
	return result
}

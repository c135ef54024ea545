package source

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

var (
	ErrNotAMigrationFile = errors.New("not a migration file")
	ErrMissingUpScript   = errors.New("migration has no up script")
	ErrUnknownKind       = errors.New("unknown migration kind")
	ErrInvalidName       = errors.New("invalid migration name")
	ErrAlreadyExists     = errors.New("migration file already exists")
)

// Kind is the flavour of a scaffolded migration
type Kind string

const (
	KindSQL Kind = "sql"
	KindGo  Kind = "go"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSQL, "":
		return KindSQL, nil
	case KindGo:
		return KindGo, nil
	default:
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

var nameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidateName makes sure a name survives being part of a file name
// and of a Go identifier
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "%q must start with a letter and contain only letters, digits, _ or -", name)
	}

	return nil
}

// Selector yields migration factories from somewhere other than Go code
// compiled into the binary
type Selector interface {
	Select(ctx context.Context) ([]migration.Factory, error)
}

// Creator writes the skeleton of a new migration and reports where it went
type Creator interface {
	Exists(name string) (bool, error)
	Create(name string, at time.Time) (string, error)
}

type InMemorySource struct {
	factories []migration.Factory
}

var _ Selector = (*InMemorySource)(nil)

func NewInMemorySource(factories ...migration.Factory) *InMemorySource {
	return &InMemorySource{factories: factories}
}

func (s *InMemorySource) Select(ctx context.Context) ([]migration.Factory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.factories, nil
}

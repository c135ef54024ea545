package migration

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrDuplicateMigration = errors.New("duplicate migration or name collision")

// Registry holds every known definition keyed by name. It is built once at
// startup and handed to whoever needs it.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Definition)}
}

// NewRegistryFrom builds a registry out of a static manifest
func NewRegistryFrom(factories ...Factory) (*Registry, error) {
	r := NewRegistry()
	if err := r.RegisterFactories(factories...); err != nil {
		return nil, err
	}

	return r, nil
}

// Register adds a definition, a name that is already present is rejected
// and the existing definition is kept
func (r *Registry) Register(d *Definition) error {
	if d == nil {
		return errors.Wrap(ErrInvalidDefinition, "nil definition")
	}

	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[d.Name]; ok {
		return errors.Wrapf(
			ErrDuplicateMigration,
			"%s (dated %s) is already registered from %s",
			d.Name, existing.DateWritten.Format(DateLayout), existing.Source,
		)
	}

	r.byName[d.Name] = d

	return nil
}

func (r *Registry) RegisterFactories(factories ...Factory) error {
	for i := range factories {
		d, err := factories[i]()
		if err != nil {
			return err
		}

		if err := r.Register(d); err != nil {
			return err
		}
	}

	return nil
}

// MustRegister panics on any registration error, a broken manifest
// must stop the process before anything touches the database
func (r *Registry) MustRegister(factories ...Factory) {
	if err := r.RegisterFactories(factories...); err != nil {
		panic(err)
	}
}

// All returns the definitions ordered by date written and then by name
func (r *Registry) All() Definitions {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(Definitions, 0, len(r.byName))
	for _, d := range r.byName {
		result = append(result, d)
	}

	sort.Sort(result)

	return result
}

func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	return d, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *Registry) Names() []string {
	return r.All().Names()
}

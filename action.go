package migrant

import "github.com/forumops/migrant/internal/database"

type ActionConfigurator func(a *Action)

type Action struct {
	steps  int
	target string
}

// WithSteps limits how many migrations a single call executes
func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
	}
}

// WithTarget stops at the named migration, it is executed too
func WithTarget(name string) ActionConfigurator {
	return func(a *Action) {
		a.target = name
	}
}

func CreateConfigurators(steps int, target string) []ActionConfigurator {
	var configurators []ActionConfigurator
	if steps > 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	if target != "" {
		configurators = append(configurators, WithTarget(target))
	}

	return configurators
}

func newAction(cfs []ActionConfigurator) *Action {
	act := new(Action)
	for _, f := range cfs {
		f(act)
	}

	return act
}

func (a *Action) plan() database.Plan {
	return database.Plan{Target: a.target, Steps: a.steps}
}

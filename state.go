package migrant

import "github.com/google/uuid"

// State is where the migrator is in its current invocation
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateDiffing
	StateExecuting
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDiffing:
		return "diffing"
	case StateExecuting:
		return "executing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

func newRunID() string {
	return uuid.New().String()
}

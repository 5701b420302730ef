package lifecycle

import "fmt"

// State of one test execution.
type State int

const (
	StateIdle State = iota
	StateSettingUp
	StateRunning
	StatePassed
	StateFailed
	StateSkipped
	StateTearingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingUp:
		return "setting-up"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateTearingDown:
		return "tearing-down"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// allowed lists the legal successors of every state.
var allowed = map[State][]State{
	StateIdle:        {StateSettingUp},
	StateSettingUp:   {StateRunning, StateFailed, StateTearingDown},
	StateRunning:     {StatePassed, StateFailed, StateSkipped, StateTearingDown},
	StatePassed:      {StateTearingDown},
	StateFailed:      {StateTearingDown},
	StateSkipped:     {StateTearingDown},
	StateTearingDown: {StateDone},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is one of the outcome states.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateSkipped
}

package container

import "fmt"

// State is the lifecycle position of a managed component.
type State int

const (
	StateConstructed State = iota
	StatePreInit
	StatePostInit
	StateRunning
	StatePreDestroy
	StatePostDestroy
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "CONSTRUCTED"
	case StatePreInit:
		return "PRE_INIT"
	case StatePostInit:
		return "POST_INIT"
	case StateRunning:
		return "RUNNING"
	case StatePreDestroy:
		return "PRE_DESTROY"
	case StatePostDestroy:
		return "POST_DESTROY"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed
}

// canTransition allows forward moves only. Skipping states is permitted so a
// component that never reached RUNNING can still be torn down or closed.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to > from && to <= StateClosed
}

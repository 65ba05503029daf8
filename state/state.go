// Package state defines the lifecycle states of a run and the
// transition rules the run protocol enforces.
package state

import (
	"errors"
	"strings"
)

// State represents the lifecycle state of a run.
type State string

const (
	Created   State = "CREATED"
	Pending   State = "PENDING"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Error     State = "ERROR"
)

// ErrUnknown is returned when a status value does not map to a known state.
var ErrUnknown = errors.New("unknown run state")

// Parse maps free-form status values to canonical states. An empty value
// parses as Created, the implicit initial state of a new run.
func Parse(value string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(Created):
		return Created, nil
	case string(Pending):
		return Pending, nil
	case string(Running):
		return Running, nil
	case string(Completed):
		return Completed, nil
	case string(Error):
		return Error, nil
	default:
		return "", ErrUnknown
	}
}

// Terminal reports whether a run in s has finished, successfully or not.
func Terminal(s State) bool {
	return s == Completed || s == Error
}

// CanBuild reports whether a run in s may be built. Rebuilding a pending or
// finished run is allowed; building is denied only while the run executes.
func CanBuild(s State) bool {
	return s != Running
}

// CanExecute reports whether a run in s may be executed. Running is included
// so an interrupted execution can be retried without rebuilding.
func CanExecute(s State) bool {
	return s == Pending || s == Running
}

// CanTransition reports whether the run protocol may move a run from
// current to next. Identity transitions are always allowed.
func CanTransition(current, next State) bool {
	if current == next {
		return true
	}
	switch next {
	case Pending:
		return CanBuild(current)
	case Running:
		return current == Pending
	case Completed, Error:
		return current == Pending || current == Running
	default:
		return false
	}
}

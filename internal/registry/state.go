package registry

import (
	"errors"
	"fmt"
)

// MaxStateLen is the widest state representation the dispatcher_processes
// schema allows (state VARCHAR(15)).
const MaxStateLen = 15

// State is the lifecycle state of a dispatcher-managed process record.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSuspended State = "suspended"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// transitions is the closed adjacency table of legal state changes.
// Terminal states have no entry. There are no self-loops.
var transitions = map[State][]State{
	StatePending:   {StateRunning, StateCancelled},
	StateRunning:   {StateSuspended, StateCompleted, StateFailed, StateCancelled},
	StateSuspended: {StateRunning, StateCancelled},
}

var ErrUnknownState = errors.New("unknown state")

var ErrIllegalTransition = errors.New("illegal state transition")

// TransitionError reports a rejected state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// ParseState validates a stored state string.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return st, nil
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateSuspended, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }

// Transition checks the requested state change against the adjacency table
// and returns the new state. It is a pure function of the (cur, next) pair.
func Transition(cur, next State) (State, error) {
	if !cur.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, string(cur))
	}
	if !next.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, string(next))
	}
	for _, allowed := range transitions[cur] {
		if allowed == next {
			return next, nil
		}
	}
	return "", &TransitionError{From: cur, To: next}
}

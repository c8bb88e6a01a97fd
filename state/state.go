package state

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a session.
type Status string

const (
	Waiting    Status = "WAITING"
	InProgress Status = "IN_PROGRESS"
	Suspended  Status = "SUSPENDED"
	Finished   Status = "FINISHED"
)

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	ErrUnknownStatus        = errors.New("unknown status")
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(Lifecycle[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// Parse maps a serialized status name back to a Status. An empty name
// means WAITING, matching a freshly created session.
func Parse(name string) (Status, error) {
	switch Status(name) {
	case "":
		return Waiting, nil
	case Waiting, InProgress, Suspended, Finished:
		return Status(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

// Transitions maps a state to the states reachable from it in one step.
type Transitions map[Status][]Status

// Lifecycle is the session state machine:
// WAITING -> IN_PROGRESS -> {SUSPENDED <-> IN_PROGRESS, FINISHED}.
var Lifecycle = Transitions{
	Waiting:    {InProgress},
	InProgress: {Suspended, Finished},
	Suspended:  {InProgress},
}

// Allows reports whether from -> to is a single legal step.
func (t Transitions) Allows(from, to Status) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns ErrTransitionNotAllowed, annotated with both states, when
// from -> to is not a legal step.
func (t Transitions) Check(from, to Status) error {
	if t.Allows(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
}

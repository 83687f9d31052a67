package engine

import (
	"fmt"
	"strings"
)

// ValidationError rejects malformed or missing input before any state change.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// TransitionError rejects an action that is not legal from the current status.
type TransitionError struct {
	Action string
	Status string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("action %s not allowed from status %s", e.Action, e.Status)
}

// RoutingError means no supervisor could be resolved for any requested
// teammate. Creation fails before anything is persisted.
type RoutingError struct {
	Teammates []string
}

func (e RoutingError) Error() string {
	return fmt.Sprintf("no supervisor resolved for teammates: %s", strings.Join(e.Teammates, ", "))
}

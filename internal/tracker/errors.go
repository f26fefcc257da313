package tracker

import (
	"errors"
	"fmt"
)

// StateError reports an operation that is illegal in an instance's current
// state, such as removing an instance that was never attached.
type StateError struct {
	Entity  string
	Op      string
	State   State
	Message string
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tracker: cannot %s %s in state %s: %s", e.Op, e.Entity, e.State, e.Message)
	}
	return fmt.Sprintf("tracker: cannot %s %s in state %s", e.Op, e.Entity, e.State)
}

// IsStateError returns true if err is or wraps a *StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

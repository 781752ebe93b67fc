package flight

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a flight identifier is unknown
var ErrNotFound = errors.New("flight not found")

// ValidationError reports a malformed flight plan. The flight is never
// created when validation fails.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid flight plan: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StateError reports a transition attempted from an incompatible status.
// It is a local, recoverable conflict: no state is mutated.
type StateError struct {
	FlightID string
	From     Status
	To       Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("flight %s: cannot transition from %s to %s", e.FlightID, e.From, e.To)
}

// IsStateError reports whether err is a state conflict
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsValidationError reports whether err is a plan validation failure
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

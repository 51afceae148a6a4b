package cycle

import (
	"fmt"

	"autopilot/types"
)

// AbortError is returned when a mandatory phase fails and the cycle stops
type AbortError struct {
	Phase types.CyclePhase
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("cycle aborted during %s: %v", e.Phase, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

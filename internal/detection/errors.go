package detection

import "fmt"

// CapabilityError indicates an injected scoring capability failed.
// The analysis is reported as failed rather than defaulting to a score.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

package trust

import (
	"errors"
	"fmt"
)

var errNilCapability = errors.New("capability not configured")

// CapabilityUnavailableError indicates an injected scoring capability
// failed or was never wired. Callers must treat the evaluation as failed
// rather than substituting a default score.
type CapabilityUnavailableError struct {
	Capability string
	Err        error
}

func (e *CapabilityUnavailableError) Error() string {
	return fmt.Sprintf("capability %s unavailable: %v", e.Capability, e.Err)
}

func (e *CapabilityUnavailableError) Unwrap() error {
	return e.Err
}

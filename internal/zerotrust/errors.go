package zerotrust

import "fmt"

// LifecycleError indicates a component start/stop transition failed or
// an operation was attempted in a state that cannot serve it.
type LifecycleError struct {
	Component string
	Op        string
	Err       error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Component, e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

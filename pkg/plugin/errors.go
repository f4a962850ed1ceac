package plugin

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRegistrationClosed is returned by Register once linking has begun.
	ErrRegistrationClosed = errors.New("registration is closed")
	// ErrPhaseOrder is returned when a lifecycle phase is requested out of order.
	ErrPhaseOrder = errors.New("lifecycle phase out of order")
)

// CapabilityNotFoundError reports that no registered module provides a
// required capability.
type CapabilityNotFoundError struct {
	Capability string
}

func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("no module implements capability %q", e.Capability)
}

// LifecyclePhaseError wraps a failure raised by a module hook during link,
// configure or start. It aborts startup of the whole host.
type LifecyclePhaseError struct {
	Phase  string
	Module string
	Handle Handle
	Err    error
}

func (e *LifecyclePhaseError) Error() string {
	return fmt.Sprintf("%s %s (#%d): %v", e.Phase, e.Module, e.Handle, e.Err)
}

func (e *LifecyclePhaseError) Unwrap() error { return e.Err }

// callHook runs fn, turning a panic into an error.
func callHook(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = errors.Wrap(perr, "panic")
				return
			}
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

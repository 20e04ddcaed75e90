// Package busfault provides the structured, code-tagged error values shared
// by every event-bus component: registration/freeze failures, transport
// configuration problems, serialization failures, and unsupported operations.
package busfault

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/go-utils/errs"
)

// Error code constants for structured errors.
const (
	CodeConfiguration = "EVENTBUS_CONFIGURATION"
	CodeValidation    = "EVENTBUS_VALIDATION"
	CodeNotSupported  = "EVENTBUS_NOT_SUPPORTED"
	CodeUnknownEvent  = "EVENTBUS_UNKNOWN_EVENT"
	CodeSerialization = "EVENTBUS_SERIALIZATION"
	CodeTransient     = "EVENTBUS_TRANSIENT"
	CodeLifecycle     = "EVENTBUS_LIFECYCLE"
	CodeTimeout       = "EVENTBUS_TIMEOUT"
)

// Fault is a structured error with a stable code, built on the host
// framework's generic structured-error type.
type Fault = errs.Error

// ErrConfiguration reports a fatal configuration problem raised at freeze or
// transport start (missing connection string, unknown transport, duplicate
// name, oversized name, invalid serializer).
func ErrConfiguration(message string, cause error) *Fault {
	return errs.NewError(CodeConfiguration, message, cause)
}

// ErrValidation reports that a registration or naming input failed validation.
func ErrValidation(field string, cause error) *Fault {
	return errs.NewError(CodeValidation, fmt.Sprintf("validation error for field %q", field), cause)
}

// ErrNotSupported reports that a transport does not implement the requested
// capability (Cancel on a transport without scheduled-cancel support, etc).
func ErrNotSupported(operation, transport string) *Fault {
	return errs.NewError(CodeNotSupported, fmt.Sprintf("%s is not supported by transport %q", operation, transport), nil)
}

// ErrUnknownEvent reports that a registration lookup found no binding for the
// requested event type.
func ErrUnknownEvent(eventName string) *Fault {
	return errs.NewError(CodeUnknownEvent, fmt.Sprintf("no registration for event %q", eventName), nil)
}

// ErrSerialization reports a failure to encode or decode an EventContext.
func ErrSerialization(direction string, cause error) *Fault {
	return errs.NewError(CodeSerialization, "serialization failed during "+direction, cause)
}

// ErrTransient reports a broker-level error expected to be transient
// (network, throttling, connection blocked/shutdown).
func ErrTransient(operation string, cause error) *Fault {
	return errs.NewError(CodeTransient, "transient broker error during "+operation, cause)
}

// ErrLifecycle reports a failure during a start/stop/health transition.
func ErrLifecycle(phase string, cause error) *Fault {
	return errs.NewError(CodeLifecycle, "lifecycle error during "+phase, cause)
}

// ErrTimeout reports that an operation did not complete within its deadline.
func ErrTimeout(operation string, timeout time.Duration) *Fault {
	return errs.NewError(CodeTimeout, fmt.Sprintf("timeout during %s after %s", operation, timeout), nil)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// Sentinel errors for use with Is, one per code.
var (
	ErrConfigurationSentinel = &Fault{Code: CodeConfiguration}
	ErrValidationSentinel    = &Fault{Code: CodeValidation}
	ErrNotSupportedSentinel  = &Fault{Code: CodeNotSupported}
	ErrUnknownEventSentinel  = &Fault{Code: CodeUnknownEvent}
	ErrSerializationSentinel = &Fault{Code: CodeSerialization}
	ErrTransientSentinel     = &Fault{Code: CodeTransient}
	ErrLifecycleSentinel     = &Fault{Code: CodeLifecycle}
	ErrTimeoutSentinel       = &Fault{Code: CodeTimeout}
)

// IsNotSupported reports whether err is (or wraps) a not-supported fault.
func IsNotSupported(err error) bool { return Is(err, ErrNotSupportedSentinel) }

// IsUnknownEvent reports whether err is (or wraps) an unknown-event fault.
func IsUnknownEvent(err error) bool { return Is(err, ErrUnknownEventSentinel) }

// IsConfiguration reports whether err is (or wraps) a configuration fault.
func IsConfiguration(err error) bool { return Is(err, ErrConfigurationSentinel) }

// IsTransient reports whether err is (or wraps) a transient fault.
func IsTransient(err error) bool { return Is(err, ErrTransientSentinel) }

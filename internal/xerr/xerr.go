// Package xerr carries the numeric error codes of the control-plane
// channel (spec §6) through ordinary Go errors. Internal code attaches a
// code with Wrap (e.g. Wrap(NotFound, err)), may add context around it
// with fmt.Errorf("...: %w", ...), and the control-plane boundary
// recovers the code with CodeOf (errors.As) at the edge (spec §7: "API-surface
// errors returned to the caller; no internal state change").
package xerr

import "errors"

// Code is the C-compatible numeric error code of spec §6.
type Code int

const (
	Ok                    Code = 0
	InvalidArgument       Code = 1
	NotFound              Code = 2
	OperationFailed       Code = 3
	OutOfMemory           Code = 4
	ConfigError           Code = 10
	InvalidDomainID       Code = 11
	InvalidParticipantID  Code = 12
	NoAvailableParticipantID Code = 13
	InvalidState          Code = 14
	IoError               Code = 20
	TransportError        Code = 21
	RegistrationFailed    Code = 22
	WouldBlock            Code = 23
	TypeMismatch          Code = 30
	SerializationError    Code = 31
	BufferTooSmall        Code = 32
	EndianMismatch        Code = 33
	QosIncompatible       Code = 40
	Unsupported           Code = 41
	PermissionDenied      Code = 50
	AuthenticationFailed  Code = 51
)

// Coded is an error carrying one of the above numeric codes, unwrappable
// to its underlying cause.
type Coded struct {
	Code  Code
	Cause error
}

func (e *Coded) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

func (e *Coded) Unwrap() error { return e.Cause }

// Wrap builds a Coded error with cause. A nil cause is allowed, for
// sentinel-only construction (e.g. xerr.Wrap(xerr.NotFound, nil)).
func Wrap(code Code, cause error) error {
	return &Coded{Code: code, Cause: cause}
}

// CodeOf recovers the numeric code from err, defaulting to
// OperationFailed for any error not produced by this package — the
// control-plane boundary (internal/control) must never leak an
// un-coded internal error across the handle API.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var coded *Coded
	if errors.As(err, &coded) {
		return coded.Code
	}
	return OperationFailed
}

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case OperationFailed:
		return "operation failed"
	case OutOfMemory:
		return "out of memory"
	case ConfigError:
		return "config error"
	case InvalidDomainID:
		return "invalid domain id"
	case InvalidParticipantID:
		return "invalid participant id"
	case NoAvailableParticipantID:
		return "no available participant id"
	case InvalidState:
		return "invalid state"
	case IoError:
		return "io error"
	case TransportError:
		return "transport error"
	case RegistrationFailed:
		return "registration failed"
	case WouldBlock:
		return "would block"
	case TypeMismatch:
		return "type mismatch"
	case SerializationError:
		return "serialization error"
	case BufferTooSmall:
		return "buffer too small"
	case EndianMismatch:
		return "endian mismatch"
	case QosIncompatible:
		return "qos incompatible"
	case Unsupported:
		return "unsupported"
	case PermissionDenied:
		return "permission denied"
	case AuthenticationFailed:
		return "authentication failed"
	default:
		return "unknown error code"
	}
}

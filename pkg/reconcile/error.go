package reconcile

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUtilityNotFound     ErrorKind = "utility_not_found"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindPatchConflict       ErrorKind = "patch_conflict"
	KindExecutionFailed     ErrorKind = "execution_failed"
	KindTimeout             ErrorKind = "timeout"
	KindTransportAuthFailed ErrorKind = "transport_auth_failed"
)

// Error is the typed failure carried in results and returned by every
// subsystem. It wraps an underlying cause when one exists.
type Error struct {
	Kind    ErrorKind `json:"kind" cbor:"kind"`
	Message string    `json:"message" cbor:"message"`

	cause error
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError normalizes any error into a typed *Error. Unclassified errors
// surface as ExecutionFailed rather than being swallowed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Kind: KindExecutionFailed, Message: err.Error()}
}

// KindOf reports the kind of err, or an empty kind for nil / untyped errors.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

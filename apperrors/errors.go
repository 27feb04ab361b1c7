// Package apperrors provides the typed, recoverable error values returned by
// the event and registration operations.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind groups codes by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidTransition
	KindGuardViolation
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindGuardViolation:
		return "guard_violation"
	case KindValidation:
		return "validation_error"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code used by the REST handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition, KindGuardViolation:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal Code = "INTERNAL"

	CodeNotFound  Code = "NOT_FOUND"
	CodeForbidden Code = "FORBIDDEN"

	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Guard violations
	CodeAlreadyRegistered       Code = "ALREADY_REGISTERED"
	CodeEventNotApproved        Code = "EVENT_NOT_APPROVED"
	CodeEventInPast             Code = "EVENT_IN_PAST"
	CodeEventFull               Code = "EVENT_FULL"
	CodeAlreadyCancelled        Code = "ALREADY_CANCELLED"
	CodeAlreadyCompleted        Code = "ALREADY_COMPLETED"
	CodeTooLateToCancel         Code = "TOO_LATE_TO_CANCEL"
	CodeEventNotEnded           Code = "EVENT_NOT_ENDED"
	CodeActiveRegistrations     Code = "ACTIVE_REGISTRATIONS_EXIST"
	CodeCapacityBelowRegistered Code = "CAPACITY_BELOW_REGISTERED"

	// Validation
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeReasonRequired   Code = "REASON_REQUIRED"
	CodeInvalidRating    Code = "INVALID_RATING"
	CodeInvalidID        Code = "INVALID_ID"
)

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeNotFound:
		return KindNotFound
	case CodeForbidden:
		return KindForbidden
	case CodeInvalidTransition:
		return KindInvalidTransition
	case CodeAlreadyRegistered, CodeEventNotApproved, CodeEventInPast, CodeEventFull,
		CodeAlreadyCancelled, CodeAlreadyCompleted, CodeTooLateToCancel, CodeEventNotEnded,
		CodeActiveRegistrations, CodeCapacityBelowRegistered:
		return KindGuardViolation
	case CodeValidationFailed, CodeReasonRequired, CodeInvalidRating, CodeInvalidID:
		return KindValidation
	default:
		return KindInternal
	}
}

// Error is a domain error with a code and optional per-field details.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.Code.Kind() }

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error carrying per-field messages.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Fields: fields}
}

// Internal wraps an unexpected failure, usually from storage.
func Internal(op string, err error) *Error {
	return &Error{Code: CodeInternal, Message: op + ": " + err.Error(), cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found"}
}

// Forbidden reports a denied action.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// GetCode extracts the error code from any error.
// Returns CodeInternal if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf extracts the kind from any error.
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsKind checks if the error belongs to the specified kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Package httperr defines the API error taxonomy and its mapping onto
// HTTP responses. Domain packages return *Error values (or wrap them);
// handlers hand any error to JSON, which resolves the kind and writes a
// consistent {"error": {"code", "message"}} body.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for HTTP mapping and client handling.
type Kind string

const (
	KindValidationFailed    Kind = "validation_failed"
	KindUnsupportedUnit     Kind = "unsupported_unit"
	KindDuplicateDetected   Kind = "duplicate_detected"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindConstraintViolation Kind = "constraint_violation"
	KindInternal            Kind = "internal"
)

// statusByKind maps each kind to its HTTP status. DuplicateDetected maps
// to 200 because ingestion reports duplicates as a success payload, not a
// failure; it only reaches this table if a caller surfaces it as an error.
var statusByKind = map[Kind]int{
	KindValidationFailed:    http.StatusBadRequest,
	KindUnsupportedUnit:     http.StatusUnprocessableEntity,
	KindDuplicateDetected:   http.StatusOK,
	KindNotFound:            http.StatusNotFound,
	KindForbidden:           http.StatusForbidden,
	KindConstraintViolation: http.StatusConflict,
	KindInternal:            http.StatusInternalServerError,
}

// Error carries a taxonomy kind alongside a client-safe message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause. The cause is
// preserved for logs and errors.Is chains; only Message goes to clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf is shorthand for a validation failure.
func Validationf(format string, args ...interface{}) *Error {
	return Newf(KindValidationFailed, format, args...)
}

// NotFoundf is shorthand for a missing entity.
func NotFoundf(format string, args ...interface{}) *Error {
	return Newf(KindNotFound, format, args...)
}

// Forbiddenf is shorthand for an authorization refusal.
func Forbiddenf(format string, args ...interface{}) *Error {
	return Newf(KindForbidden, format, args...)
}

// KindOf extracts the taxonomy kind from err, walking the wrap chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status returns the HTTP status for err per the taxonomy.
func Status(err error) int {
	if s, ok := statusByKind[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

type errorBody struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// JSON writes err as the taxonomy envelope. Internal errors get a generic
// message so wrapped causes never leak to clients.
func JSON(c echo.Context, err error) error {
	kind := KindOf(err)
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if kind == KindInternal {
		msg = "internal server error"
	}
	return c.JSON(Status(err), errorEnvelope{Error: errorBody{Code: kind, Message: msg}})
}

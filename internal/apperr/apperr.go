// Package apperr defines the error taxonomy shared by every layer of the
// service. Domain packages return *Error values (or wrap sentinel *Error
// values with fmt.Errorf) and the HTTP layer maps the outermost Kind in the
// chain to a status code via [HTTPStatus].
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by who is at fault and whether a retry can help.
type Kind int

const (
	// KindInternal is the zero value: an unexpected fault with no better class.
	KindInternal Kind = iota
	// KindNotFound means the addressed agent, job, index, or document is absent.
	KindNotFound
	// KindValidation means the caller sent malformed input. Not retryable.
	KindValidation
	// KindExecution means model, retrieval, or build invocation failed.
	// May be transient.
	KindExecution
	// KindStorage means the document layer failed to read or write.
	KindStorage
	// KindConfiguration means an agent or model is set up incorrectly.
	KindConfiguration
	// KindUnavailable means the service is temporarily at capacity.
	KindUnavailable
)

// String returns the lower-case name of the kind for logs.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindStorage:
		return "storage"
	case KindConfiguration:
		return "configuration"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error. Msg is safe to show to API clients; Err holds
// the underlying cause and is only surfaced through Error().
type Error struct {
	// Kind is the taxonomy class used for HTTP mapping.
	Kind Kind
	// Op names the operation that failed (e.g. "agent.execute").
	Op string
	// Msg is the human-readable message.
	Msg string
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return e.Msg
	}
}

// Unwrap returns the wrapped cause so errors.Is / errors.As see through it.
func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

// KindOf returns the Kind of the outermost *Error in err's chain, or
// KindInternal if the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing message for err: the Msg of the
// outermost *Error when present, otherwise err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil && e.Kind != KindNotFound && e.Kind != KindValidation {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Msg
	}
	return err.Error()
}

// HTTPStatus maps err to the status code returned by polling and CRUD
// endpoints: NotFound→404, Validation/Configuration→400, Unavailable→503,
// everything else→500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

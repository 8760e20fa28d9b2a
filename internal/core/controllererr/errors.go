// Package controllererr defines the error taxonomy shared by every
// controller component, and the mapping from that taxonomy onto HTTP
// status codes at the request boundary.
package controllererr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a controller error without naming a concrete type,
// mirroring the way spec.md §7 enumerates error kinds rather than types.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindValidation           Kind = "validation"
	KindResourceExhaustion   Kind = "resource_exhaustion"
	KindExternalToolFailure  Kind = "external_tool_failure"
	KindTimeout              Kind = "timeout"
	KindUnsupported          Kind = "unsupported"
)

// Error wraps an underlying error with the operation that failed and its
// taxonomy kind, the same "Op, Err" shape the teacher uses for its
// per-domain *XxxError types (e.g. services/iot's IoTError).
type Error struct {
	Op  string
	Kind Kind
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a controller error.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap is New with fmt.Errorf-style message construction.
func Wrap(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error; otherwise it reports KindExternalToolFailure as the safest
// default for an unclassified failure.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindExternalToolFailure
}

// HTTPStatus maps a Kind onto the status code the request boundary
// should use, matching spec.md §7's "NNN-class" notes per kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindValidation, KindUnsupported:
		return http.StatusBadRequest
	case KindResourceExhaustion, KindExternalToolFailure:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr defines the error taxonomy shared by the solver, its
// adapters and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindData     Kind = "DATA_ERROR"
	KindUpstream Kind = "UPSTREAM_ERROR"
	KindSearch   Kind = "SEARCH_ERROR"
	KindConflict Kind = "CONFLICT"
	KindNotFound Kind = "RESOURCE_NOT_FOUND"
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error carries a kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindData})
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Data reports missing or invalid domain data the caller can correct.
func Data(format string, args ...any) *Error { return newf(KindData, format, args...) }

// Upstream reports a failed dependency such as the matrix provider.
func Upstream(err error, format string, args ...any) *Error {
	e := newf(KindUpstream, format, args...)
	e.Err = err
	return e
}

// Search reports an internal solver fault.
func Search(err error, format string, args ...any) *Error {
	e := newf(KindSearch, format, args...)
	e.Err = err
	return e
}

func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

func NotFound(resource, id string) *Error {
	return newf(KindNotFound, "%s %s not found", resource, id)
}

func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindData:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see for err. Internal and search
// faults are never described.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindSearch {
		return e.Message
	}
	return "unexpected error"
}

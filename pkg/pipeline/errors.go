package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure for the request boundary.
type Kind string

const (
	// KindInvalidRequest is a user error (missing source, malformed width).
	KindInvalidRequest Kind = "invalid_request"

	// KindNotFound means the source does not exist.
	KindNotFound Kind = "not_found"

	// KindUpstream is a transport or object store failure.
	KindUpstream Kind = "upstream_error"

	// KindTransform is a codec failure on the fetched bytes.
	KindTransform Kind = "transform_error"

	// KindCanceled means the caller's context ended before a result was ready.
	KindCanceled Kind = "canceled"

	// KindInternal is any failure that is none of the above.
	KindInternal Kind = "internal_error"
)

// ErrEmptySource is returned for an empty source identifier.
var ErrEmptySource = errors.New("source is required")

// Error is a classified pipeline failure.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return KindInternal
}

// StatusCode maps err to an HTTP status: InvalidRequest 400, NotFound 404,
// everything else 500.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

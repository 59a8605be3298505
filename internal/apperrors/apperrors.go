// Package apperrors defines the typed error taxonomy shared by the store,
// gateway, bridge, and API layers, and the envelope the API surface renders
// them as.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP-status mapping and metrics labeling.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidInput Kind = "invalid_input"
	KindUnauthorized Kind = "unauthorized"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
	KindUnavailable  Kind = "unavailable"
)

// httpStatus maps a Kind to the status code the API layer should respond
// with. Webhook handlers deliberately do not use this — they always
// return 200 regardless of Kind (spec §7).
var httpStatus = map[Kind]int{
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindInvalidInput: http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindUpstream:     http.StatusBadGateway,
	KindInternal:     http.StatusInternalServerError,
	KindUnavailable:  http.StatusServiceUnavailable,
}

// Error is the taxonomy's concrete type. Op names the failing operation
// (e.g. "store.ClaimNextContacts") for log correlation; it is never
// rendered to API clients.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error, wrapping err if non-nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// does not carry one — callers should never leak raw driver/library errors
// to the API envelope without classifying them first.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err's Kind to a response status code.
func HTTPStatus(err error) int {
	if s, ok := httpStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsNotFound is a convenience predicate used by call sites that want to
// fall back to a default rather than propagate (e.g. the Engine skipping a
// contact whose lock vanished from under it).
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports a claim race loss — callers typically just move on to
// the next candidate rather than retrying the same row (spec §8 invariant 1).
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// Package apperrors defines the error taxonomy shared by the access-control
// core. Guards and services return these typed errors unmodified so that the
// HTTP layer can map them to status codes without string matching.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError indicates a request that violates a static invariant
// (duplicate default pool, no-default-access conflict, malformed scope).
// Never retried automatically.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation creates a ValidationError with a formatted message.
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MissingResourceError indicates an entity that does not exist, or one the
// caller lacks permission to know exists. The two cases are deliberately
// merged so that unauthorized callers cannot probe for existence.
type MissingResourceError struct {
	Resource string
	IDs      []string
}

func (e *MissingResourceError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s does not exist or you do not have access to it", e.Resource)
	}
	return fmt.Sprintf("%s with id(s) %s does not exist or you do not have access to it",
		e.Resource, strings.Join(e.IDs, ", "))
}

// NewMissingResource creates a MissingResourceError for the named resource.
func NewMissingResource(resource string, ids ...string) *MissingResourceError {
	return &MissingResourceError{Resource: resource, IDs: ids}
}

// ConflictError indicates an optimistic-concurrency failure (etag mismatch)
// or a unique-key collision. The caller must re-fetch and retry with fresh
// state; the core never retries on its own.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflict creates a ConflictError with a formatted message.
func NewConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NewEtagConflict creates the ConflictError used by the concurrency gate.
// Both tokens are included so the caller can see what it raced against.
func NewEtagConflict(current, supplied string) *ConflictError {
	return &ConflictError{
		Message: fmt.Sprintf("the supplied etag %q does not match the current etag %q, please refresh and try again", supplied, current),
	}
}

// UnauthorizedError indicates a missing or unusable identity on an operation
// that requires one.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// NewUnauthorized creates an UnauthorizedError with a formatted message.
func NewUnauthorized(format string, args ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError indicates an authenticated caller whose role is
// insufficient for a coarse-grained gate (admin-only operations). Fine
// grained per-resource denials use MissingResourceError instead.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NewForbidden creates a ForbiddenError with a formatted message.
func NewForbidden(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsMissingResource reports whether err is a MissingResourceError.
func IsMissingResource(err error) bool {
	var target *MissingResourceError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}

// HTTPStatus maps a taxonomy error to its HTTP status code. Unknown errors
// map to 500 so that infrastructure failures are never mistaken for client
// errors.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsMissingResource(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

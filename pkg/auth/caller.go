// Package auth defines caller identities and permission scopes used by the
// access-control core. Admin gating is an explicit guard call at the top of
// each admin-only operation rather than a decorator, so the fail-fast
// behavior is visible at the call site.
package auth

import "github.com/basinhq/basin/pkg/apperrors"

// Caller is the identity presented with every operation. An anonymous
// caller has a nil ID; an admin is always authenticated.
type Caller struct {
	ID              *string `json:"id,omitempty"`
	IsAuthenticated bool    `json:"is_authenticated"`
	IsAdmin         bool    `json:"is_admin"`
}

// Anonymous returns the unauthenticated caller.
func Anonymous() Caller {
	return Caller{}
}

// NewCaller returns an authenticated non-admin caller for the given subject.
func NewCaller(id string) Caller {
	return Caller{ID: &id, IsAuthenticated: true}
}

// NewAdmin returns an authenticated admin caller for the given subject.
func NewAdmin(id string) Caller {
	return Caller{ID: &id, IsAuthenticated: true, IsAdmin: true}
}

// UserID returns the caller's subject id, or the empty string for anonymous
// callers.
func (c Caller) UserID() string {
	if c.ID == nil {
		return ""
	}
	return *c.ID
}

// RequireAdmin rejects callers that may not perform admin-only operations.
// Unauthenticated callers get UnauthorizedError, authenticated non-admins
// get ForbiddenError.
func RequireAdmin(caller Caller) error {
	if !caller.IsAuthenticated || caller.ID == nil {
		return apperrors.NewUnauthorized("you have to be authenticated to perform this operation")
	}
	if !caller.IsAdmin {
		return apperrors.NewForbidden("you do not have the required permissions for this operation")
	}
	return nil
}

// RequireAuthenticated rejects anonymous callers.
func RequireAuthenticated(caller Caller) error {
	if !caller.IsAuthenticated || caller.ID == nil {
		return apperrors.NewUnauthorized("you have to be authenticated to perform this operation")
	}
	return nil
}

// Package authz defines the client interface for the external authorization
// oracle. The oracle is authoritative for all fine-grained scope checks; the
// core only adds local caching around it. Coarse role gates (admin-only
// operations) live in pkg/auth and never consult the oracle.
package authz

import (
	"context"

	"github.com/basinhq/basin/pkg/auth"
)

// ResourceType identifies the kind of resource a permission applies to.
type ResourceType string

const (
	ResourceTypeProject       ResourceType = "project"
	ResourceTypeDataConnector ResourceType = "data_connector"
	ResourceTypeResourcePool  ResourceType = "resource_pool"
	ResourceTypeGroup         ResourceType = "group"
	ResourceTypeUserNamespace ResourceType = "user_namespace"
)

// PermissionCheck is one (resource, scope) pair to evaluate for a caller.
type PermissionCheck struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Scope        auth.Scope   `json:"scope"`
}

// PermissionResult pairs a check with the oracle's decision.
type PermissionResult struct {
	Check   PermissionCheck `json:"check"`
	Allowed bool            `json:"allowed"`
}

// Authorizer is the decision interface consulted for every per-resource
// scope check. Implementations may be remote and slow; callers must pass a
// context and should cache where staleness is tolerable.
type Authorizer interface {
	// HasPermission reports whether the caller holds the scope on one resource.
	HasPermission(ctx context.Context, caller auth.Caller, check PermissionCheck) (bool, error)

	// HasPermissions evaluates a batch of checks in one round trip.
	HasPermissions(ctx context.Context, caller auth.Caller, checks []PermissionCheck) ([]PermissionResult, error)

	// ResourcesWithPermission returns the ids of all resources of the given
	// type on which userID holds the scope. Used to shape list queries.
	ResourcesWithPermission(ctx context.Context, caller auth.Caller, userID string, resourceType ResourceType, scope auth.Scope) ([]string, error)
}

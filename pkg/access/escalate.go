// Package access holds the mutation-gating logic shared by protected
// entities (projects, data connectors): the permission-scope escalator, the
// etag-based optimistic concurrency gate, and the masked not-found check
// against the authorization oracle.
package access

import (
	"context"
	"fmt"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/authz"
)

// EntityView is the slice of a protected entity's current state the
// escalator inspects. Namespace is the entity's first namespace segment for
// projects and the full parent path for data connectors.
type EntityView struct {
	Visibility string
	Namespace  string
	Slug       string
}

// PatchView exposes the identity-defining fields of a patch. Nil fields
// are absent from the patch.
type PatchView struct {
	Visibility *string
	Namespace  *string
	Slug       *string
}

// RequiredScope determines the minimum permission a patch needs. Baseline
// is WRITE; changing visibility, namespace or slug escalates to DELETE
// because those fields decide who can discover or own the entity.
func RequiredScope(current EntityView, patch PatchView) auth.Scope {
	required := auth.ScopeWrite
	if patch.Visibility != nil && *patch.Visibility != current.Visibility {
		required = auth.MaxScope(required, auth.ScopeDelete)
	}
	if patch.Namespace != nil && *patch.Namespace != current.Namespace {
		required = auth.MaxScope(required, auth.ScopeDelete)
	}
	if patch.Slug != nil && *patch.Slug != current.Slug {
		required = auth.MaxScope(required, auth.ScopeDelete)
	}
	return required
}

// RequirePermission consults the oracle and masks a denial as not-found, so
// callers without access cannot distinguish "denied" from "does not exist".
func RequirePermission(ctx context.Context, az authz.Authorizer, caller auth.Caller, resourceName string, resourceType authz.ResourceType, resourceID string, scope auth.Scope) error {
	allowed, err := az.HasPermission(ctx, caller, authz.PermissionCheck{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Scope:        scope,
	})
	if err != nil {
		return fmt.Errorf("failed to check permission: %w", err)
	}
	if !allowed {
		return apperrors.NewMissingResource(resourceName, resourceID)
	}
	return nil
}

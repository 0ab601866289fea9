package authz

import (
	"context"
	"sync"

	"github.com/basinhq/basin/pkg/auth"
)

// Static is an in-memory Authorizer used by tests and local development.
// Admin callers are allowed everything; other callers only what was granted
// via Grant. Safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	grants map[string]map[grantKey]struct{}
}

type grantKey struct {
	resourceType ResourceType
	resourceID   string
	scope        auth.Scope
}

// NewStatic creates an empty static authorizer.
func NewStatic() *Static {
	return &Static{grants: make(map[string]map[grantKey]struct{})}
}

// Grant records that userID holds scope on the resource. A DELETE grant
// implies WRITE and READ through Scope.AtLeast at check time.
func (s *Static) Grant(userID string, resourceType ResourceType, resourceID string, scope auth.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[userID] == nil {
		s.grants[userID] = make(map[grantKey]struct{})
	}
	s.grants[userID][grantKey{resourceType, resourceID, scope}] = struct{}{}
}

// Revoke removes every grant userID holds on the resource.
func (s *Static) Revoke(userID string, resourceType ResourceType, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.grants[userID] {
		if key.resourceType == resourceType && key.resourceID == resourceID {
			delete(s.grants[userID], key)
		}
	}
}

// HasPermission implements Authorizer.
func (s *Static) HasPermission(_ context.Context, caller auth.Caller, check PermissionCheck) (bool, error) {
	if caller.IsAdmin {
		return true, nil
	}
	if !caller.IsAuthenticated || caller.ID == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.grants[*caller.ID] {
		if key.resourceType == check.ResourceType && key.resourceID == check.ResourceID && key.scope.AtLeast(check.Scope) {
			return true, nil
		}
	}
	return false, nil
}

// HasPermissions implements Authorizer.
func (s *Static) HasPermissions(ctx context.Context, caller auth.Caller, checks []PermissionCheck) ([]PermissionResult, error) {
	results := make([]PermissionResult, 0, len(checks))
	for _, check := range checks {
		allowed, err := s.HasPermission(ctx, caller, check)
		if err != nil {
			return nil, err
		}
		results = append(results, PermissionResult{Check: check, Allowed: allowed})
	}
	return results, nil
}

// ResourcesWithPermission implements Authorizer.
func (s *Static) ResourcesWithPermission(_ context.Context, _ auth.Caller, userID string, resourceType ResourceType, scope auth.Scope) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for key := range s.grants[userID] {
		if key.resourceType != resourceType || !key.scope.AtLeast(scope) {
			continue
		}
		if _, dup := seen[key.resourceID]; dup {
			continue
		}
		seen[key.resourceID] = struct{}{}
		ids = append(ids, key.resourceID)
	}
	return ids, nil
}

package pools

import (
	"fmt"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
)

// Predicate is a SQL WHERE fragment plus its arguments, produced by the
// visibility filter and consumed by the pool listing query. The fragment
// references the resource_pools alias "rp".
type Predicate struct {
	Where string
	Args  []interface{}
}

// PoolFilter narrows a pool listing to rows the caller may see. target is
// the resolved record of the user the query is about, nil when the listing
// is not user-scoped.
//
// Every (authenticated, admin) combination is handled explicitly:
//   - authenticated non-admin: may only query their own scope; sees pools
//     they are a member of plus public pools
//   - authenticated admin: unrestricted, optionally narrowed to the target
//     user's memberships
//   - unauthenticated: public pools only
//
// Independent of the case taken, a target user flagged no_default_access
// never sees the default pool. argIndex is the first $n placeholder number
// available to the fragment.
func PoolFilter(caller auth.Caller, target *PoolUser, argIndex int) (Predicate, error) {
	var pred Predicate

	switch {
	case caller.IsAuthenticated && !caller.IsAdmin:
		if target != nil && target.KeycloakID != caller.UserID() {
			return Predicate{}, apperrors.NewValidation("your user ID should match the user ID for which you are querying")
		}
		pred = Predicate{
			Where: fmt.Sprintf("(rp.public OR EXISTS (SELECT 1 FROM resource_pool_members rpu WHERE rpu.pool_id = rp.id AND rpu.keycloak_id = $%d))", argIndex),
			Args:  []interface{}{caller.UserID()},
		}

	case caller.IsAuthenticated && caller.IsAdmin:
		if target != nil {
			pred = Predicate{
				Where: fmt.Sprintf("EXISTS (SELECT 1 FROM resource_pool_members rpu WHERE rpu.pool_id = rp.id AND rpu.keycloak_id = $%d)", argIndex),
				Args:  []interface{}{target.KeycloakID},
			}
		} else {
			pred = Predicate{Where: "TRUE"}
		}

	default: // unauthenticated
		pred = Predicate{Where: "rp.public"}
	}

	if target != nil && target.NoDefaultAccess {
		pred.Where = fmt.Sprintf(`(%s) AND NOT rp."default"`, pred.Where)
	}

	return pred, nil
}

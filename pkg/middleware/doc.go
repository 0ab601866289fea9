// Package middleware resolves HTTP callers and gates admin-only routes.
//
// # Caller Resolution
//
// CallerResolver verifies Keycloak-issued bearer tokens against the
// configured OIDC provider and stores the resulting auth.Caller on the
// request context:
//
//	resolver, err := middleware.NewCallerResolver(ctx, cfg.Auth)
//	router.Use(resolver.Handler)
//
// Requests without an Authorization header are not rejected; they proceed
// as the anonymous caller, and the per-resource access checks decide what
// anonymous callers may see. Malformed or unverifiable tokens are rejected
// with 401.
//
// A caller holding the configured admin realm role (BASIN_AUTH_ADMIN_ROLE)
// is resolved as an admin and bypasses per-resource permission checks.
//
// # Admin Gate
//
//	router.Handle("/admin/...", middleware.RequireAdmin(handler))
//
// RequireAdmin writes 401 for anonymous callers and 403 for authenticated
// non-admins.
package middleware

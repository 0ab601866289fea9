package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/config"
	"github.com/basinhq/basin/pkg/contextkeys"
	"github.com/basinhq/basin/pkg/httputil"
)

// CallerResolver turns bearer tokens into auth.Caller values. Requests
// without a token proceed as the anonymous caller; per-resource access rules
// decide what anonymous callers may see.
type CallerResolver struct {
	verify    func(ctx context.Context, rawToken string) (tokenClaims, error)
	adminRole string
}

// tokenClaims is the subset of the Keycloak access token the resolver reads.
type tokenClaims struct {
	Subject     string `json:"sub"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// NewCallerResolver discovers the OIDC provider and builds a resolver that
// verifies tokens against it.
func NewCallerResolver(ctx context.Context, cfg config.AuthConfig) (*CallerResolver, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return &CallerResolver{
		adminRole: cfg.AdminRole,
		verify: func(ctx context.Context, rawToken string) (tokenClaims, error) {
			idToken, err := verifier.Verify(ctx, rawToken)
			if err != nil {
				return tokenClaims{}, err
			}
			var claims tokenClaims
			if err := idToken.Claims(&claims); err != nil {
				return tokenClaims{}, err
			}
			return claims, nil
		},
	}, nil
}

// Handler resolves the caller and stores it on the request context.
func (m *CallerResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			ctx := contextkeys.WithCaller(r.Context(), auth.Anonymous())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteTaxonomyError(w, apperrors.NewUnauthorized("invalid authorization header format"))
			return
		}

		claims, err := m.verify(r.Context(), parts[1])
		if err != nil {
			httputil.WriteTaxonomyError(w, apperrors.NewUnauthorized("invalid or expired token"))
			return
		}

		caller := auth.NewCaller(claims.Subject)
		for _, role := range claims.RealmAccess.Roles {
			if role == m.adminRole {
				caller = auth.NewAdmin(claims.Subject)
				break
			}
		}

		ctx := contextkeys.WithCaller(r.Context(), caller)
		ctx = contextkeys.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromRequest extracts the resolved caller, defaulting to anonymous
// when the auth middleware did not run.
func CallerFromRequest(r *http.Request) auth.Caller {
	if caller, ok := r.Context().Value(contextkeys.CallerKey).(auth.Caller); ok {
		return caller
	}
	return auth.Anonymous()
}

// RequireAdmin gates a route on the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFromRequest(r)
		if err := auth.RequireAdmin(caller); err != nil {
			httputil.WriteTaxonomyError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

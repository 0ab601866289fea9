package authz

import (
	"context"
	"time"

	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/observability"
)

// Instrumented decorates an Authorizer with decision metrics. It sits
// outermost so cache hits and oracle round trips are both counted.
type Instrumented struct {
	inner   Authorizer
	metrics *observability.Metrics
}

// NewInstrumented wraps the authorizer; a nil metrics handle passes through.
func NewInstrumented(inner Authorizer, metrics *observability.Metrics) Authorizer {
	if metrics == nil {
		return inner
	}
	return &Instrumented{inner: inner, metrics: metrics}
}

// HasPermission implements Authorizer.
func (i *Instrumented) HasPermission(ctx context.Context, caller auth.Caller, check PermissionCheck) (bool, error) {
	start := time.Now()
	allowed, err := i.inner.HasPermission(ctx, caller, check)
	i.metrics.GuardDuration.WithLabelValues("authz_check").Observe(time.Since(start).Seconds())
	if err != nil {
		return false, err
	}
	i.metrics.ObserveDecision(allowed)
	return allowed, nil
}

// HasPermissions implements Authorizer.
func (i *Instrumented) HasPermissions(ctx context.Context, caller auth.Caller, checks []PermissionCheck) ([]PermissionResult, error) {
	start := time.Now()
	results, err := i.inner.HasPermissions(ctx, caller, checks)
	i.metrics.GuardDuration.WithLabelValues("authz_batch").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		i.metrics.ObserveDecision(result.Allowed)
	}
	return results, nil
}

// ResourcesWithPermission implements Authorizer; id listings are not
// decisions and only contribute latency.
func (i *Instrumented) ResourcesWithPermission(ctx context.Context, caller auth.Caller, userID string, resourceType ResourceType, scope auth.Scope) ([]string, error) {
	start := time.Now()
	ids, err := i.inner.ResourcesWithPermission(ctx, caller, userID, resourceType, scope)
	i.metrics.GuardDuration.WithLabelValues("authz_resources").Observe(time.Since(start).Seconds())
	return ids, err
}

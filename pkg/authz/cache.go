package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/observability"
)

// CachedAuthorizer wraps an Authorizer with a two-tier decision cache: an
// in-process LRU in front of Redis. Only boolean single-check decisions are
// cached; batch checks and resource-id sets go straight to the oracle
// because their results are both larger and more staleness-sensitive.
type CachedAuthorizer struct {
	inner   Authorizer
	redis   *redis.Client
	l1      *lru.Cache[string, cachedDecision]
	ttl     time.Duration
	metrics *observability.Metrics
}

type cachedDecision struct {
	allowed   bool
	expiresAt time.Time
}

// NewCachedAuthorizer creates the caching decorator. l1Size caps the
// in-process tier; ttl bounds staleness for both tiers.
func NewCachedAuthorizer(inner Authorizer, redisClient *redis.Client, l1Size int, ttl time.Duration) (*CachedAuthorizer, error) {
	if l1Size <= 0 {
		l1Size = 4096
	}
	l1, err := lru.New[string, cachedDecision](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	return &CachedAuthorizer{
		inner: inner,
		redis: redisClient,
		l1:    l1,
		ttl:   ttl,
	}, nil
}

// WithMetrics enables cache hit/miss counters.
func (c *CachedAuthorizer) WithMetrics(metrics *observability.Metrics) *CachedAuthorizer {
	c.metrics = metrics
	return c
}

func (c *CachedAuthorizer) observeCache(tier string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func decisionKey(caller auth.Caller, check PermissionCheck) string {
	return fmt.Sprintf("authz:%s:%s:%s:%s", caller.UserID(), check.ResourceType, check.ResourceID, check.Scope)
}

// HasPermission implements Authorizer with caching.
func (c *CachedAuthorizer) HasPermission(ctx context.Context, caller auth.Caller, check PermissionCheck) (bool, error) {
	// Admin decisions are trivially true and not worth a cache slot.
	if caller.IsAdmin {
		return c.inner.HasPermission(ctx, caller, check)
	}

	key := decisionKey(caller, check)
	if entry, ok := c.l1.Get(key); ok && time.Now().Before(entry.expiresAt) {
		c.observeCache("l1", true)
		return entry.allowed, nil
	}
	c.observeCache("l1", false)

	if c.redis != nil {
		if val, err := c.redis.Get(ctx, key).Result(); err == nil {
			c.observeCache("redis", true)
			allowed := val == "1"
			c.l1.Add(key, cachedDecision{allowed: allowed, expiresAt: time.Now().Add(c.ttl)})
			return allowed, nil
		}
		c.observeCache("redis", false)
	}

	allowed, err := c.inner.HasPermission(ctx, caller, check)
	if err != nil {
		return false, err
	}

	c.l1.Add(key, cachedDecision{allowed: allowed, expiresAt: time.Now().Add(c.ttl)})
	if c.redis != nil {
		// Best effort; a failed cache write must not fail the check.
		c.redis.Set(ctx, key, boolToCacheValue(allowed), c.ttl)
	}
	return allowed, nil
}

func boolToCacheValue(allowed bool) string {
	if allowed {
		return "1"
	}
	return "0"
}

// HasPermissions implements Authorizer; batch checks bypass the cache.
func (c *CachedAuthorizer) HasPermissions(ctx context.Context, caller auth.Caller, checks []PermissionCheck) ([]PermissionResult, error) {
	return c.inner.HasPermissions(ctx, caller, checks)
}

// ResourcesWithPermission implements Authorizer; id sets bypass the cache.
func (c *CachedAuthorizer) ResourcesWithPermission(ctx context.Context, caller auth.Caller, userID string, resourceType ResourceType, scope auth.Scope) ([]string, error) {
	return c.inner.ResourcesWithPermission(ctx, caller, userID, resourceType, scope)
}

// InvalidateUser drops every cached decision for the user, letting a grant
// change made in the oracle take effect without waiting out the TTL. Grants
// are mutated in the oracle, not here, so this is an operational hook rather
// than part of a request path.
func (c *CachedAuthorizer) InvalidateUser(ctx context.Context, userID string) error {
	prefix := fmt.Sprintf("authz:%s:", userID)
	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Remove(key)
		}
	}

	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, fmt.Sprintf("authz:%s:*", userID), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cached decision: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached decisions: %w", err)
	}
	return nil
}

// SweepExpired removes expired L1 entries. Redis entries expire natively via
// TTL; this only keeps the in-process tier from serving dead weight.
func (c *CachedAuthorizer) SweepExpired() int {
	removed := 0
	now := time.Now()
	for _, key := range c.l1.Keys() {
		if entry, ok := c.l1.Peek(key); ok && now.After(entry.expiresAt) {
			c.l1.Remove(key)
			removed++
		}
	}
	return removed
}

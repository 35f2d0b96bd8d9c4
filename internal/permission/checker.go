package permission

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/metrics"
)

func resultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

// Checker combines the permission-result cache with the engine. Cache
// write failures are logged and swallowed; the check result is already in
// hand and the entry will simply be recomputed next time.
type Checker struct {
	engine Engine
	cache  *cache.Service
	log    zerolog.Logger
}

// NewChecker wires a Checker.
func NewChecker(engine Engine, cacheSvc *cache.Service, log zerolog.Logger) *Checker {
	return &Checker{engine: engine, cache: cacheSvc, log: log}
}

// Check resolves (userID, relation, object) through the cache, falling
// through to the engine on a miss or a cache error.
func (c *Checker) Check(ctx context.Context, userID, relation, object string) (bool, error) {
	cached, found, err := c.cache.GetCachedPermission(ctx, userID, object, relation)
	if err != nil {
		c.log.Warn().Err(err).Str("object", object).Msg("permission cache read failed")
	} else if found {
		metrics.PermissionChecks.WithLabelValues("cache", resultLabel(cached.Allowed)).Inc()
		return cached.Allowed, nil
	}

	allowed, err := c.engine.Check(ctx, userID, relation, object)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues("engine", "error").Inc()
		return false, err
	}
	metrics.PermissionChecks.WithLabelValues("engine", resultLabel(allowed)).Inc()

	if err := c.cache.CachePermission(ctx, userID, object, relation, allowed); err != nil {
		c.log.Warn().Err(err).Str("object", object).Msg("permission cache write failed")
	}
	return allowed, nil
}

// IsSuperAdmin resolves the global superadmin flag under the same caching
// scheme as any other relation.
func (c *Checker) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	return c.Check(ctx, userID, SuperAdminRelation, SuperAdminObject)
}

// AssignSuperAdmin grants the global superadmin relation and invalidates
// the user's cached permission results so the grant shows up immediately.
func (c *Checker) AssignSuperAdmin(ctx context.Context, userID string) error {
	if err := c.engine.AssignSuperAdmin(ctx, userID); err != nil {
		return err
	}
	return c.InvalidateUser(ctx, userID)
}

// CreateProfileRelations forwards to the engine.
func (c *Checker) CreateProfileRelations(ctx context.Context, userID, profileID string) error {
	return c.engine.CreateProfileRelations(ctx, userID, profileID)
}

// InvalidateUser drops every cached permission result for userID. Required
// after any identity or role change; not required on logout.
func (c *Checker) InvalidateUser(ctx context.Context, userID string) error {
	return c.cache.InvalidateAllUserPermissions(ctx, userID)
}

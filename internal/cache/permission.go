package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// PermissionResult is a cached relationship-check outcome. Soft cache: a
// miss always falls through to the permission engine, and a cached deny is
// still re-checked after the TTL window.
type PermissionResult struct {
	Allowed   bool      `json:"allowed"`
	Timestamp time.Time `json:"timestamp"`
}

// CachePermission stores a relationship-check result for the configured
// permission TTL (5 minutes by default).
func (s *Service) CachePermission(ctx context.Context, userID, object, relation string, allowed bool) error {
	payload, err := json.Marshal(PermissionResult{Allowed: allowed, Timestamp: time.Now()})
	if err != nil {
		return err
	}

	key := permissionKey(userID, object, relation)
	if err := s.redis.Set(ctx, key, payload, s.config.PermissionTTL).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// GetCachedPermission returns the cached result for (userID, object,
// relation), or found=false on a miss.
func (s *Service) GetCachedPermission(ctx context.Context, userID, object, relation string) (*PermissionResult, bool, error) {
	payload, err := s.redis.Get(ctx, permissionKey(userID, object, relation)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRedisErr(err)
	}

	var result PermissionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

// InvalidateAllUserPermissions scans and deletes every permission result for
// the user. Called after role changes (superadmin grant/revoke, vendor
// approval); plain logout does not need it.
func (s *Service) InvalidateAllUserPermissions(ctx context.Context, userID string) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, userPermissionPattern(userID), 100).Result()
		if err != nil {
			return wrapRedisErr(err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return wrapRedisErr(err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

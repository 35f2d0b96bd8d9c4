package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes the lock only when the caller still owns it.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

// AcquireLock takes a named set-if-not-exists lock and returns an owner
// token to release it with. Used by collaborating CRUD controllers for
// short critical sections (e.g. concurrent trip edits); the auth flows
// themselves rely on per-key atomic operations instead.
func (s *Service) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	owner := uuid.NewString()

	ok, err := s.redis.SetNX(ctx, lockKey(name), owner, ttl).Result()
	if err != nil {
		return "", false, wrapRedisErr(err)
	}
	if !ok {
		return "", false, nil
	}
	return owner, true, nil
}

// ReleaseLock frees the lock if owner still holds it. Releasing a lock lost
// to TTL expiry is a no-op, not an error.
func (s *Service) ReleaseLock(ctx context.Context, name, owner string) error {
	err := releaseLockLua.Run(ctx, s.redis, []string{lockKey(name)}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return wrapRedisErr(err)
	}
	return nil
}

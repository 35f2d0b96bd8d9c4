package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// CachedUser is the denormalized user record kept beside the access-token
// cache so the middleware fast path avoids a database round trip. Password
// hashes are never cached.
type CachedUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
}

// CacheUser stores the record under both the id key and the email key.
func (s *Service) CacheUser(ctx context.Context, user CachedUser) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userIDKey(user.ID), payload, s.config.UserTTL)
		pipe.Set(ctx, userEmailKey(user.Email), payload, s.config.UserTTL)
		return nil
	})
	if err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// GetCachedUserByID returns the cached record for userID, or found=false.
func (s *Service) GetCachedUserByID(ctx context.Context, userID string) (*CachedUser, bool, error) {
	return s.getCachedUser(ctx, userIDKey(userID))
}

// GetCachedUserByEmail returns the cached record for email, or found=false.
func (s *Service) GetCachedUserByEmail(ctx context.Context, email string) (*CachedUser, bool, error) {
	return s.getCachedUser(ctx, userEmailKey(email))
}

func (s *Service) getCachedUser(ctx context.Context, key string) (*CachedUser, bool, error) {
	payload, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRedisErr(err)
	}

	var user CachedUser
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

// InvalidateUser drops both keys for the user.
func (s *Service) InvalidateUser(ctx context.Context, userID, email string) error {
	if err := s.redis.Del(ctx, userIDKey(userID), userEmailKey(email)).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

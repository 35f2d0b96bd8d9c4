package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccessEntry is the cached record of a previously validated access token.
// Its presence means "signature was checked once"; its absence means
// nothing — the middleware falls back to signature verification.
type AccessEntry struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
}

// FastPathResult is the outcome of the single-round-trip fast path lookup:
// the cached entry (if any) and whether the token is blacklisted.
type FastPathResult struct {
	Entry       *AccessEntry
	Blacklisted bool
}

// CacheAccessToken stores the token digest with the owning user. TTL equals
// the access-token lifetime, so the entry can never outlive the token.
func (s *Service) CacheAccessToken(ctx context.Context, userID, rawToken string) error {
	payload, err := json.Marshal(AccessEntry{UserID: userID, Type: "access"})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, accessTokenKey(s.digest(rawToken)), payload, s.config.AccessTTL).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// ValidateAccessToken looks up the cached entry for rawToken.
func (s *Service) ValidateAccessToken(ctx context.Context, rawToken string) (*AccessEntry, bool, error) {
	payload, err := s.redis.Get(ctx, accessTokenKey(s.digest(rawToken))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRedisErr(err)
	}

	var entry AccessEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

// FastPathLookup issues the access-token read and the blacklist check in one
// pipeline. The blacklist result is authoritative: when the pipeline fails,
// the caller must treat the token as unverified (fail closed), not fall back
// to the cached entry.
func (s *Service) FastPathLookup(ctx context.Context, rawToken string) (FastPathResult, error) {
	digest := s.digest(rawToken)

	var (
		entryCmd *redis.StringCmd
		blCmd    *redis.IntCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		entryCmd = pipe.Get(ctx, accessTokenKey(digest))
		blCmd = pipe.Exists(ctx, blacklistKey(digest))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return FastPathResult{}, wrapRedisErr(err)
	}

	blacklisted, err := blCmd.Result()
	if err != nil {
		return FastPathResult{}, wrapRedisErr(err)
	}

	result := FastPathResult{Blacklisted: blacklisted > 0}

	payload, err := entryCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return result, nil
		}
		return FastPathResult{}, wrapRedisErr(err)
	}

	var entry AccessEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return FastPathResult{}, err
	}
	result.Entry = &entry
	return result, nil
}

// InvalidateAccessToken drops the cached entry. Used when signature
// verification reports the token expired while a stale entry may linger.
func (s *Service) InvalidateAccessToken(ctx context.Context, rawToken string) error {
	if err := s.redis.Del(ctx, accessTokenKey(s.digest(rawToken))).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// BlacklistAccessToken writes a tombstone for the token lasting its
// remaining natural lifetime. The entry disappears exactly when the token
// would have expired anyway, so the blacklist never grows unbounded.
func (s *Service) BlacklistAccessToken(ctx context.Context, rawToken string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(s.digest(rawToken)), "1", remaining).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// IsBlacklisted reports whether the token carries a tombstone. Errors here
// must be treated as "blacklisted" by security-sensitive callers.
func (s *Service) IsBlacklisted(ctx context.Context, rawToken string) (bool, error) {
	n, err := s.redis.Exists(ctx, blacklistKey(s.digest(rawToken))).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return n > 0, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Metadata describes the device that minted a refresh token. Stored beside
// the fingerprint; purely informational.
type Metadata struct {
	UserID    string    `json:"userId"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Restored  bool      `json:"restored,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// removeFingerprintScript deletes the keyed entry and the set membership in
// one round. Removing one without the other is a bug state, so the two
// deletes share a script.
const removeFingerprintScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var removeFingerprintLua = redis.NewScript(removeFingerprintScript)

// StoreFingerprint records the digest of rawToken with metadata, and indexes
// it in the user's fingerprint set. The set TTL is refreshed on every add so
// it always covers the longest-lived member.
func (s *Service) StoreFingerprint(ctx context.Context, userID, rawToken string, meta Metadata) (string, error) {
	digest := s.digest(rawToken)

	meta.UserID = userID
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fingerprintKey(digest), payload, s.config.RefreshTTL)
		pipe.SAdd(ctx, userSetKey(userID), digest)
		pipe.Expire(ctx, userSetKey(userID), s.config.RefreshTTL)
		return nil
	})
	if err != nil {
		return "", wrapRedisErr(err)
	}

	return digest, nil
}

// ValidateFingerprint recomputes the digest of rawToken and looks it up.
// found=false means "not in the fast cache": callers fall back to the
// durable refresh-token row, they do NOT treat it as invalid.
func (s *Service) ValidateFingerprint(ctx context.Context, userID, rawToken string) (*Metadata, bool, error) {
	digest := s.digest(rawToken)

	payload, err := s.redis.Get(ctx, fingerprintKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRedisErr(err)
	}

	var meta Metadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, false, err
	}
	if meta.UserID != userID {
		// Digest collision across users is not possible with a per-token
		// digest, but a caller passing the wrong user must not validate.
		return nil, false, nil
	}

	return &meta, true, nil
}

// RemoveFingerprint deletes the keyed entry and the set membership,
// both-or-neither.
func (s *Service) RemoveFingerprint(ctx context.Context, userID, rawToken string) error {
	digest := s.digest(rawToken)

	err := removeFingerprintLua.Run(
		ctx,
		s.redis,
		[]string{fingerprintKey(digest), userSetKey(userID)},
		digest,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return wrapRedisErr(err)
	}
	return nil
}

// RemoveAllFingerprints enumerates the user's fingerprint set and deletes
// every keyed entry plus the set itself in one pipelined transaction.
func (s *Service) RemoveAllFingerprints(ctx context.Context, userID string) error {
	setKey := userSetKey(userID)

	digests, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return wrapRedisErr(err)
	}

	keys := make([]string, 0, len(digests)+1)
	for _, digest := range digests {
		keys = append(keys, fingerprintKey(digest))
	}
	keys = append(keys, setKey)

	if _, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	}); err != nil {
		return wrapRedisErr(err)
	}

	return nil
}

// FingerprintCount reports how many live fingerprints the user has.
func (s *Service) FingerprintCount(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, userSetKey(userID)).Result()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return int(n), nil
}

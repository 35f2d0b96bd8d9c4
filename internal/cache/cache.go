// Package cache is the Redis-backed fast path of the auth core: refresh-token
// fingerprints, validated-access-token entries, the revocation blacklist,
// permission results, denormalized user records, rate-limit counters, and
// generic resource locks.
//
// Everything here is an optimization over durable state except the blacklist,
// which is authoritative. Callers treat a miss (or, outside the blacklist, an
// error) as "fall back to the durable store", never as a denial.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps transport-level Redis failures so callers can
// distinguish them from a plain miss.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Config tunes the cache service. TTLs mirror the token lifetimes they guard.
type Config struct {
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	PermissionTTL time.Duration
	UserTTL       time.Duration
}

// Service owns the Redis connection and all auth-relevant key families.
type Service struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Service over an already-constructed Redis client. The caller
// owns the client lifecycle; Close releases it.
func New(client redis.UniversalClient, cfg Config) (*Service, error) {
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh secret is required for fingerprint digests")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid cache TTL configuration")
	}
	if cfg.PermissionTTL <= 0 {
		cfg.PermissionTTL = 5 * time.Minute
	}
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = cfg.AccessTTL
	}
	return &Service{redis: client, config: cfg}, nil
}

// Connect builds a Redis client from a URL and returns a ready Service.
func Connect(ctx context.Context, redisURL string, cfg Config) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	svc, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return svc, nil
}

// Close releases the underlying Redis client.
func (s *Service) Close() error {
	return s.redis.Close()
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Service) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return time.Since(start), nil
}

// digest computes the one-way fingerprint of a raw token: SHA-256 over the
// token concatenated with the server-side secret. The raw token itself is
// never written to Redis.
func (s *Service) digest(rawToken string) string {
	h := sha256.New()
	h.Write([]byte(rawToken))
	h.Write(s.config.RefreshSecret)
	return hex.EncodeToString(h.Sum(nil))
}

func fingerprintKey(digest string) string  { return "rfp:" + digest }
func userSetKey(userID string) string      { return "rfu:" + userID }
func accessTokenKey(digest string) string  { return "acc:" + digest }
func blacklistKey(digest string) string    { return "bl:" + digest }
func userIDKey(userID string) string       { return "usr:id:" + userID }
func userEmailKey(email string) string     { return "usr:email:" + email }
func rateKey(ip, path string) string       { return "rl:" + ip + ":" + path }
func lockKey(name string) string           { return "lock:" + name }

func permissionKey(userID, object, relation string) string {
	return "perm:" + userID + ":" + object + ":" + relation
}

func userPermissionPattern(userID string) string {
	return "perm:" + userID + ":*"
}

func wrapRedisErr(err error) error {
	return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}

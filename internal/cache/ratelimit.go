package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowState is the outcome of one fixed-window increment.
type WindowState struct {
	Count   int64
	ResetIn time.Duration
}

// IncrementWindow advances the fixed-window counter for (ip, path) and
// returns the new count with time-to-reset. The TTL is set only when the
// counter is created, so the window boundary stays fixed.
func (s *Service) IncrementWindow(ctx context.Context, ip, path string, window time.Duration) (WindowState, error) {
	key := rateKey(ip, path)

	var (
		incrCmd *redis.IntCmd
		ttlCmd  *redis.DurationCmd
	)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incrCmd = pipe.Incr(ctx, key)
		ttlCmd = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return WindowState{}, wrapRedisErr(err)
	}

	count := incrCmd.Val()
	ttl := ttlCmd.Val()
	if ttl < 0 {
		// Fresh counter (or one missing its expiry): start the window now.
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return WindowState{}, wrapRedisErr(err)
		}
		ttl = window
	}

	return WindowState{Count: count, ResetIn: ttl}, nil
}

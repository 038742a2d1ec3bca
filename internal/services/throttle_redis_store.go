package services

import (
	"context"
	"fmt"
	"time"
)

// RedisThrottleStore relies on SET NX PX: the key exists exactly while the
// requester is inside its window, and its PTTL is the retry hint.
type RedisThrottleStore struct {
	cache KeyValueCache
}

func NewRedisThrottleStore(c KeyValueCache) *RedisThrottleStore {
	return &RedisThrottleStore{cache: c}
}

func (s *RedisThrottleStore) TryAcquire(ctx context.Context, key string, now time.Time, interval time.Duration) (ThrottleDecision, error) {
	// a second attempt covers the key expiring between SETNX and PTTL
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.cache.SetNX(ctx, key, now.UnixMilli(), interval)
		if err != nil {
			return ThrottleDecision{}, fmt.Errorf("throttle setnx: %w", err)
		}
		if ok {
			return ThrottleDecision{Accepted: true}, nil
		}

		ttl, err := s.cache.PTTL(ctx, key)
		if err != nil {
			return ThrottleDecision{}, fmt.Errorf("throttle pttl: %w", err)
		}
		if ttl > 0 {
			return ThrottleDecision{Accepted: false, RetryAfter: ttl}, nil
		}
	}

	return ThrottleDecision{Accepted: false, RetryAfter: time.Millisecond}, nil
}

package services

import (
	"context"
	"time"
)

// KeyValueCache is the subset of pkg/cache.RedisCache the shared-store
// implementations rely on. Get returns cache.ErrCacheMiss for absent keys.
type KeyValueCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	PTTL(ctx context.Context, key string) (time.Duration, error)
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...interface{}) error
}

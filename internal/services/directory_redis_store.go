package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/cache"
)

// RedisDirectoryStore keeps one JSON value per guardian plus an index set so
// every instance behind the load balancer sees the same directory.
type RedisDirectoryStore struct {
	cache KeyValueCache
}

func NewRedisDirectoryStore(c KeyValueCache) *RedisDirectoryStore {
	return &RedisDirectoryStore{cache: c}
}

func guardianKey(id string) string {
	return utils.CacheGuardianPrefix + id
}

func (s *RedisDirectoryStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Guardian, error) {
	var g models.Guardian
	if err := s.cache.Get(ctx, guardianKey(id.Hex()), &g); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrGuardianNotFound
		}
		return nil, fmt.Errorf("failed to load guardian: %w", err)
	}
	return &g, nil
}

func (s *RedisDirectoryStore) Put(ctx context.Context, guardian *models.Guardian) error {
	if err := s.cache.Set(ctx, guardianKey(guardian.ID.Hex()), guardian, 0); err != nil {
		return fmt.Errorf("failed to store guardian: %w", err)
	}
	if err := s.cache.SAdd(ctx, utils.CacheGuardianIndexKey, guardian.ID.Hex()); err != nil {
		return fmt.Errorf("failed to index guardian: %w", err)
	}
	return nil
}

func (s *RedisDirectoryStore) List(ctx context.Context) ([]*models.Guardian, error) {
	ids, err := s.cache.SMembers(ctx, utils.CacheGuardianIndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list guardian index: %w", err)
	}

	out := make([]*models.Guardian, 0, len(ids))
	for _, id := range ids {
		var g models.Guardian
		err := s.cache.Get(ctx, guardianKey(id), &g)
		if errors.Is(err, cache.ErrCacheMiss) {
			// index entry outlived its value
			_ = s.cache.SRem(ctx, utils.CacheGuardianIndexKey, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load guardian %s: %w", id, err)
		}
		out = append(out, &g)
	}
	return out, nil
}

package services

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
)

type ThrottleDecision struct {
	Accepted   bool
	RetryAfter time.Duration
}

// ThrottleStore performs the lookup-and-update for one key atomically.
type ThrottleStore interface {
	TryAcquire(ctx context.Context, key string, now time.Time, interval time.Duration) (ThrottleDecision, error)
}

// ThrottleService enforces a minimum interval between submissions of one requester.
// It sits behind the network rate limiter and is independent of it.
type ThrottleService struct {
	store  ThrottleStore
	now    func() time.Time
	logger *logger.Logger
}

func NewThrottleService(store ThrottleStore, log *logger.Logger) *ThrottleService {
	return &ThrottleService{
		store:  store,
		now:    time.Now,
		logger: log.WithField("component", "submission_throttle"),
	}
}

// TryAccept never blocks emergency intake on infrastructure: a store failure accepts.
func (s *ThrottleService) TryAccept(ctx context.Context, requesterID primitive.ObjectID, minInterval time.Duration) ThrottleDecision {
	if minInterval <= 0 {
		return ThrottleDecision{Accepted: true}
	}

	key := utils.CacheThrottlePrefix + requesterID.Hex()
	decision, err := s.store.TryAcquire(ctx, key, s.now(), minInterval)
	if err != nil {
		s.logger.WithError(err).WithUserID(requesterID).Warn("Throttle store unavailable, accepting submission")
		return ThrottleDecision{Accepted: true}
	}

	if !decision.Accepted {
		metrics.ThrottleRejections.Inc()
	}
	return decision
}

// MemoryThrottleStore keeps records in go-cache so they expire on their own.
type MemoryThrottleStore struct {
	mu      sync.Mutex
	records *gocache.Cache
}

func NewMemoryThrottleStore(cleanupInterval time.Duration) *MemoryThrottleStore {
	return &MemoryThrottleStore{
		records: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryThrottleStore) TryAcquire(ctx context.Context, key string, now time.Time, interval time.Duration) (ThrottleDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, found := s.records.Get(key); found {
		if last, ok := v.(time.Time); ok {
			if elapsed := now.Sub(last); elapsed < interval {
				return ThrottleDecision{Accepted: false, RetryAfter: interval - elapsed}, nil
			}
		}
	}

	s.records.Set(key, now, interval)
	return ThrottleDecision{Accepted: true}, nil
}

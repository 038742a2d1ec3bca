package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
)

// RateLimiter caps requests per client IP. It is a network guard and knows
// nothing about alerts; the per-requester submission throttle is separate.
type RateLimiter struct {
	limiter   *limiter.Limiter
	skipPaths []string
	logger    *logger.Logger
}

// NewMemoryRateLimiter keeps counters in process.
func NewMemoryRateLimiter(perMinute int, log *logger.Logger) *RateLimiter {
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          utils.CacheRateLimitPrefix,
		CleanUpInterval: time.Minute,
	})
	return newRateLimiter(store, perMinute, log)
}

// NewRedisRateLimiter shares counters between instances through Redis.
func NewRedisRateLimiter(client *redis.Client, perMinute int, log *logger.Logger) (*RateLimiter, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: utils.CacheRateLimitPrefix,
	})
	if err != nil {
		return nil, err
	}
	return newRateLimiter(store, perMinute, log), nil
}

func newRateLimiter(store limiter.Store, perMinute int, log *logger.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}
	return &RateLimiter{
		limiter:   limiter.New(store, rate),
		skipPaths: []string{"/health", "/metrics"},
		logger:    log.WithField("component", "rate_limiter"),
	}
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		for _, p := range l.skipPaths {
			if strings.HasPrefix(route, p) {
				c.Next()
				return
			}
		}

		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		result, err := l.limiter.Get(c.Request.Context(), "ip:"+ip)
		if err != nil {
			// the limiter store is optional infrastructure
			l.logger.WithError(err).Debug("Rate limiter store unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if result.Reached {
			metrics.RateLimitDenied.WithLabelValues(route).Inc()
			retry := time.Until(time.Unix(result.Reset, 0))
			utils.TooManyRequestsResponse(c, "RATE_LIMITED", utils.ErrTooManyRequests, retry)
			c.Abort()
			return
		}

		c.Next()
	}
}

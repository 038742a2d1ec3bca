package utils

import "time"

// Application Constants
const (
	AppName = "CampusGuard"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Emergency engine defaults
	DefaultEscalationTimeout  = 60 * time.Second
	DefaultThrottleInterval   = 30 * time.Second
	DefaultNearestFanOut      = 3
	DefaultResolutionNotesMax = 1000
	DefaultGuardianStaleAfter = 10 * time.Minute
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
	ErrTooManyRequests  = "too many requests"
)

// Cache Keys
const (
	CacheGuardianPrefix   = "guardian:"
	CacheGuardianIndexKey = "guardians:index"
	CacheThrottlePrefix   = "throttle:"
	CacheRateLimitPrefix  = "rate_limit:"
)

// Realtime topics
const (
	TopicAllGuardians   = "guardians"
	TopicGuardianPrefix = "guardian:"
	TopicRolePrefix     = "role:"
	TopicUserPrefix     = "user:"
)

// Geographic Constants
const (
	EarthRadiusMeters = 6371000.0
)

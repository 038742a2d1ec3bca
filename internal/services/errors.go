package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrGuardianNotFound    = errors.New("guardian not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrAlreadyResolved     = errors.New("alert already resolved")
	ErrNotesTooLong        = errors.New("resolution notes too long")
	ErrInvalidLocation     = errors.New("invalid coordinates")
	ErrMissingDestination  = errors.New("escort destination required")
	ErrNotGuardian         = errors.New("role is not a guardian role")
)

// ThrottledError reports a submission rejected by the per-requester throttle.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("submission throttled, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// IsStateConflict reports whether err is one of the "already handled" conditions.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAlreadyAcknowledged) || errors.Is(err, ErrAlreadyResolved)
}

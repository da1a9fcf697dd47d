package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate task")
	ErrInvalidPayload = errors.New("invalid task payload")
	ErrNoCredential   = errors.New("no active verified agent credential")
	ErrRateLimited    = errors.New("rate limited by upstream")
	ErrTooFast        = errors.New("you're posting too fast, wait a bit and try again")
	ErrCycleRunning   = errors.New("a cycle is already running")
	ErrStaleCursor    = errors.New("watcher cursor was modified concurrently")
)

// RateLimitError is returned by upstream clients when they are throttled.
// RetryAfter is zero when the upstream gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

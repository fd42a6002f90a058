package reliability

import (
	"errors"
	"time"
)

// Transient is implemented by gateway errors whose kind may succeed on retry.
type Transient interface {
	Transient() bool
}

// Retryable reports whether err (or any error it wraps) is a transient
// provider failure. Validation and protocol errors are never retryable.
func Retryable(err error) bool {
	for err != nil {
		if t, ok := err.(Transient); ok {
			return t.Transient()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes from providers.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Backoff computes a deterministic capped exponential backoff duration for the
// given retry attempt (attempt 0 returns base).
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

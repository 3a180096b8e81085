package collab

import (
	"errors"
	"fmt"
	"time"

	"github.com/inkpad-ai/researchd/internal/circuitbreaker"
)

// retryable is implemented by collaborator errors that may succeed on retry.
type retryable interface {
	Retryable() bool
}

// NetworkError wraps a transport-level failure talking to a collaborator.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error   { return e.Err }
func (e *NetworkError) Retryable() bool { return true }

// RateLimitError indicates the collaborator throttled the call.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Retryable() bool { return true }

// QuotaExceededError indicates the synthesis quota is exhausted. Retrying
// cannot help; the job fails immediately.
type QuotaExceededError struct {
	Detail string
}

func (e *QuotaExceededError) Error() string {
	if e.Detail != "" {
		return "quota exceeded: " + e.Detail
	}
	return "quota exceeded"
}

func (e *QuotaExceededError) Retryable() bool { return false }

// IsRetryable classifies a collaborator failure. Breaker-open errors count
// as transient: the backend may recover before the retry budget runs out.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return true
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

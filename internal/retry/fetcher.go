package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

var _ model.PageFetcher = (*RetryFetcher)(nil)

// RetryFetcher is a decorator that retries transient page-fetch failures
// with exponential backoff and jitter.
type RetryFetcher struct {
	inner  model.PageFetcher
	policy Policy
	sleep  SleepFunc
	logger *slog.Logger
}

// NewRetryFetcher wraps a PageFetcher with retry logic.
func NewRetryFetcher(inner model.PageFetcher, policy Policy, logger *slog.Logger) *RetryFetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryFetcher{inner: inner, policy: policy, sleep: Sleep, logger: logger}
}

// Fetch attempts to fetch the page, retrying on transient errors.
func (f *RetryFetcher) Fetch(ctx context.Context) (model.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.backoffDelay(attempt-1, lastErr)
			f.logger.Warn("retrying after transient error",
				"attempt", attempt,
				"max_attempts", f.policy.MaxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			if err := f.sleep(ctx, delay); err != nil {
				return model.Page{}, err
			}
		}

		page, err := f.inner.Fetch(ctx)
		if err == nil {
			return page, nil
		}
		if !isRetryable(err) {
			return model.Page{}, err
		}
		lastErr = err
	}
	return model.Page{}, lastErr
}

// backoffDelay honours a Retry-After from the server, otherwise uses the
// policy.
func (f *RetryFetcher) backoffDelay(retry int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return f.policy.Backoff(retry)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 and 5xx are transient; other 4xx are not.
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Non-HTTP errors (network, DNS) are retryable.
	return true
}

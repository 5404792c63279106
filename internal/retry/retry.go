package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"google.golang.org/genai"
)

// ErrRetriesExhausted wraps the last error once every attempt has failed
// with an overload-class error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy describes exponential backoff with additive jitter.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the first retry
	Multiplier  float64
	MaxDelay    time.Duration // cap applied before jitter
	MaxJitter   time.Duration // uniform [0, MaxJitter) added to each delay
}

// DefaultPolicy is 3 attempts, 2s base doubling to a 30s cap, plus up to 1s
// of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Delay returns the capped delay before retry n (1-based), without jitter.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Backoff is Delay plus random jitter.
func (p Policy) Backoff(n int) time.Duration {
	d := p.Delay(n)
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.MaxJitter)))
	}
	return d
}

var overloadSignals = []string{
	"overloaded",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"rate exceeded",
	"too many requests",
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"unavailable",
}

// IsOverload reports whether err means the backend is busy rather than
// broken: HTTP 429/503, or a message carrying an overload, rate-limit or
// quota signal.
func IsOverload(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code := statusCode(err); code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range overloadSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// statusCode extracts an HTTP status from the error types the AI backends
// return, or zero.
func statusCode(err error) int {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// Retrier re-runs an operation while it fails with overload-class errors.
// Any other error ends the loop immediately.
type Retrier struct {
	policy Policy
	sleep  SleepFunc
	logger *slog.Logger
}

// NewRetrier returns a Retrier. A nil sleep uses Sleep.
func NewRetrier(policy Policy, sleep SleepFunc, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{policy: policy, sleep: sleep, logger: logger}
}

// Do calls fn until it succeeds, returns a non-overload error, or the
// attempt budget runs out. In the last case the returned error wraps both
// ErrRetriesExhausted and the final error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.Backoff(attempt - 1)
			r.logger.Warn("retrying after overload",
				"op", op,
				"attempt", attempt,
				"max_attempts", r.policy.MaxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsOverload(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, r.policy.MaxAttempts, lastErr)
}

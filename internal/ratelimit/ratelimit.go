package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

// HostRateLimiter spaces requests to the same host at least minDelay apart.
// Each caller reserves the next free slot under the lock, so concurrent
// waiters on one host queue up instead of firing together.
type HostRateLimiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // key: lower-cased host
	minDelay time.Duration
	now      func() time.Time
}

// NewHostRateLimiter creates a limiter enforcing minDelay per host.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
		now:      time.Now,
	}
}

// reserve returns how long the caller must wait for its slot on host.
func (r *HostRateLimiter) reserve(host string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	slot, ok := r.next[host]
	if !ok || slot.Before(now) {
		slot = now
	}
	r.next[host] = slot.Add(r.minDelay)
	return slot.Sub(now)
}

// Wait blocks until the caller's slot for host arrives. Returns an error if
// the context is cancelled while waiting.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	d := r.reserve(host)
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-t.C:
		return nil
	}
}

// HostOf returns the host part of rawURL, or rawURL itself when it does not
// parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

var _ model.PageFetcher = (*RateLimitedFetcher)(nil)

// RateLimitedFetcher is a decorator that waits on the host limiter before
// delegating to the wrapped PageFetcher.
type RateLimitedFetcher struct {
	inner   model.PageFetcher
	limiter *HostRateLimiter
	host    string
}

// NewRateLimitedFetcher wraps a PageFetcher. All fetchers hitting the same
// site should share one limiter.
func NewRateLimitedFetcher(inner model.PageFetcher, limiter *HostRateLimiter, host string) *RateLimitedFetcher {
	return &RateLimitedFetcher{
		inner:   inner,
		limiter: limiter,
		host:    host,
	}
}

// Fetch waits for the limiter, then delegates.
func (f *RateLimitedFetcher) Fetch(ctx context.Context) (model.Page, error) {
	if err := f.limiter.Wait(ctx, f.host); err != nil {
		return model.Page{}, err
	}
	return f.inner.Fetch(ctx)
}

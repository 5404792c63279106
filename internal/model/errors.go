package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingAPIKey is returned when ranking is requested without credentials.
	ErrMissingAPIKey = errors.New("ai api key not configured")
	// ErrInvalidAPIKey is returned when the AI backend rejects the credentials.
	ErrInvalidAPIKey = errors.New("ai api key rejected")
	// ErrAllModelsExhausted means every model in the chain ran out of retries.
	ErrAllModelsExhausted = errors.New("all models exhausted")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter reads a Retry-After header given in seconds. Dates and
// garbage yield zero.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

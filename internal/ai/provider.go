package ai

import (
	"context"
	"fmt"

	"github.com/amishk599/jobtap/internal/model"
)

// CompletionRequest is one model call: a system instruction, a user message
// and the sampling knobs the ranking stage exposes.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// LLMProvider sends a single request to a text-generation backend and
// returns the raw text of the first candidate. Implementations make exactly
// one network call per Complete; retries belong to the caller.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// MissingKeyProvider stands in for a provider that has no API key, so the
// first ranking request reports the problem instead of startup.
type MissingKeyProvider struct {
	Provider string
}

var _ LLMProvider = MissingKeyProvider{}

func (p MissingKeyProvider) Name() string { return p.Provider }

func (p MissingKeyProvider) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	return "", fmt.Errorf("%s: %w", p.Provider, model.ErrMissingAPIKey)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"google.golang.org/genai"
)

var _ LLMProvider = (*GeminiProvider)(nil)

// GeminiProvider calls the Gemini generateContent endpoint through the
// official genai client.
type GeminiProvider struct {
	client *genai.Client
}

// GeminiOptions configures NewGeminiProvider. BaseURL and HTTPClient are
// optional and mostly useful for pointing the client at a test server.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewGeminiProvider creates a Gemini provider. An empty API key is a
// configuration error and is reported before any client is built.
func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, model.ErrMissingAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cc.HTTPOptions.Timeout = genai.Ptr(opts.Timeout)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Complete sends one generateContent request and returns the response text.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.User), cfg)
	if err != nil {
		return "", classifyGeminiError(req.Model, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini %s returned no text", req.Model)
	}
	return text, nil
}

// classifyGeminiError marks key problems as configuration errors and leaves
// everything else wrapped for the retry classifier.
func classifyGeminiError(modelName string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("gemini %s: %w: %w", modelName, model.ErrInvalidAPIKey, err)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
			return fmt.Errorf("gemini %s: %w: %w", modelName, model.ErrInvalidAPIKey, err)
		}
	}
	return fmt.Errorf("gemini %s: %w", modelName, err)
}

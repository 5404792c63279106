package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultOpenAIBaseURL is used when ai.base_url is empty.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

var _ LLMProvider = (*OpenAIProvider)(nil)

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	client *resty.Client
}

// NewOpenAIProvider creates a provider targeting baseURL. A nil httpClient
// uses resty's default transport.
func NewOpenAIProvider(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, model.ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	var c *resty.Client
	if httpClient != nil {
		c = resty.NewWithClient(httpClient)
	} else {
		c = resty.New()
	}
	c.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &OpenAIProvider{client: c}, nil
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// chatRequest mirrors the OpenAI /v1/chat/completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends one chat completion and returns the first choice's content.
// Non-200 responses come back as *model.HTTPError; 401 and 403 also wrap
// model.ErrInvalidAPIKey.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		httpErr := &model.HTTPError{
			StatusCode: resp.StatusCode(),
			RetryAfter: model.ParseRetryAfter(resp.Header().Get("Retry-After")),
			Err:        errors.New(msg),
		}
		if httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("llm %s: %w: %w", req.Model, model.ErrInvalidAPIKey, httpErr)
		}
		return "", fmt.Errorf("llm %s: %w", req.Model, httpErr)
	}

	if e := gjson.GetBytes(resp.Body(), "error"); e.Exists() {
		return "", fmt.Errorf("llm error (%s): %s", e.Get("type").String(), e.Get("message").String())
	}
	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("llm returned no choices")
	}
	return content.String(), nil
}

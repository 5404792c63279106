package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is sent when the caller does not set one.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

var _ model.PageFetcher = (*HTTPFetcher)(nil)

// HTTPFetcher GETs one URL. Responses pass through the client's transport,
// so a tap-wrapped client inspects JSON bodies as a side effect.
type HTTPFetcher struct {
	client *resty.Client
	url    string
}

// NewHTTPFetcher creates a fetcher for url on top of hc, which may be nil.
func NewHTTPFetcher(url string, hc *http.Client, timeout time.Duration, headers map[string]string) *HTTPFetcher {
	var c *resty.Client
	if hc != nil {
		c = resty.NewWithClient(hc)
	} else {
		c = resty.New()
	}
	c.SetHeader("User-Agent", DefaultUserAgent).
		SetHeader("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	for k, v := range headers {
		c.SetHeader(k, v)
	}
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &HTTPFetcher{client: c, url: url}
}

// Fetch retrieves the page. Non-2xx statuses come back as *model.HTTPError
// carrying any Retry-After hint.
func (f *HTTPFetcher) Fetch(ctx context.Context) (model.Page, error) {
	resp, err := f.client.R().SetContext(ctx).Get(f.url)
	if err != nil {
		return model.Page{}, fmt.Errorf("fetch %s: %w", f.url, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return model.Page{}, &model.HTTPError{
			StatusCode: resp.StatusCode(),
			RetryAfter: model.ParseRetryAfter(resp.Header().Get("Retry-After")),
			Err:        errors.New(truncate(strings.TrimSpace(resp.String()), 200)),
		}
	}

	return model.Page{
		URL:         f.url,
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Test")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[]}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/api/search", srv.Client(), time.Second, map[string]string{"X-Test": "1"})
	page, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.URL != srv.URL+"/api/search" || page.ContentType != "application/json" || string(page.Body) != `{"jobs":[]}` {
		t.Errorf("got %+v", page)
	}
	if gotUA != DefaultUserAgent || gotCustom != "1" {
		t.Errorf("headers: ua=%q custom=%q", gotUA, gotCustom)
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.URL, srv.Client(), 0, nil).Fetch(context.Background())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want HTTPError", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 30*time.Second {
		t.Errorf("got %+v", httpErr)
	}
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(url, nil, time.Second, nil).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("network error reported as HTTP status: %v", err)
	}
}

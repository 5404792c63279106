package rank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobtap/internal/ai"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider answers each call with fn(model, callIndexForModel).
type scriptedProvider struct {
	mu    sync.Mutex
	calls []string
	fn    func(model string, n int) (string, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req.Model)
	n := 0
	for _, c := range p.calls {
		if c == req.Model {
			n++
		}
	}
	p.mu.Unlock()
	return p.fn(req.Model, n)
}

func newTestService(p ai.LLMProvider, models ...string) (*Service, *[]time.Duration) {
	var delays []time.Duration
	s := NewService(p, Options{
		Models: models,
		Policy: retry.DefaultPolicy(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}, discardLogger())
	return s, &delays
}

func ptr[T any](v T) *T { return &v }

func sampleRecords() []model.JobRecord {
	return []model.JobRecord{
		{
			Title:       "Build Playwright scraper behind Cloudflare",
			Description: "Need a scraper for a SPA with login required",
			URL:         "https://www.upwork.com/jobs/~01",
			Budget:      &model.Budget{Kind: model.BudgetHourly, Min: 40, Max: 60, Currency: "USD"},
			Skills:      []string{"Playwright", "Python"},
			Client:      model.Client{Rating: ptr(4.9)},
			ProposalsCount: ptr(3),
		},
		{
			Title:       "Logo design",
			Description: "Simple logo",
			URL:         "https://www.upwork.com/jobs/~02",
			Budget:      &model.Budget{Kind: model.BudgetFixed, Amount: 50, Currency: "USD"},
			Skills:      []string{"Illustrator"},
			ProposalsCount: ptr(50),
		},
		{
			Title:       "Data entry",
			Description: "Copy rows",
			URL:         "https://www.upwork.com/jobs/~03",
			Skills:      []string{},
		},
	}
}

const goodReply = "```json\n[" +
	`{"url":"https://www.upwork.com/jobs/~02","title":"Logo design","score":40,"reason":"meh"},` +
	`{"url":"https://www.upwork.com/jobs/~01","title":"x","score":"93","reason":"great fit"},` +
	`{"url":"","title":"data entry","score":250,"reason":"clamped"},` +
	`{"url":"https://elsewhere/9","title":"unknown","score":99}` +
	"]\n```"

func TestRank_AISuccess(t *testing.T) {
	p := &scriptedProvider{fn: func(string, int) (string, error) { return goodReply, nil }}
	s, delays := newTestService(p, "m1", "m2")

	recs := sampleRecords()
	got, err := s.Rank(context.Background(), recs, 10, model.Preferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Heuristic || got.Model != "m1" {
		t.Errorf("got heuristic=%v model=%q, want ai via m1", got.Heuristic, got.Model)
	}
	if len(*delays) != 0 {
		t.Errorf("unexpected sleeps %v", *delays)
	}

	var urls []string
	var scores []float64
	for _, r := range got.Results {
		urls = append(urls, r.Record.URL)
		scores = append(scores, r.Score)
	}
	wantURLs := []string{"https://www.upwork.com/jobs/~03", "https://www.upwork.com/jobs/~01", "https://www.upwork.com/jobs/~02"}
	if !slices.Equal(urls, wantURLs) {
		t.Errorf("got order %v, want %v", urls, wantURLs)
	}
	if !slices.Equal(scores, []float64{100, 93, 40}) {
		t.Errorf("got scores %v, want [100 93 40]", scores)
	}
	if got.Results[1].Record.Score == nil || *got.Results[1].Record.ScoreReason != "great fit" {
		t.Errorf("copy not annotated: %+v", got.Results[1].Record)
	}
	if recs[0].Score != nil {
		t.Error("input record was mutated")
	}
}

func TestRank_TopNLimit(t *testing.T) {
	p := &scriptedProvider{fn: func(string, int) (string, error) { return goodReply, nil }}
	s, _ := newTestService(p, "m1")

	got, err := s.Rank(context.Background(), sampleRecords(), 2, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 {
		t.Errorf("got %d results, want 2", len(got.Results))
	}
}

func TestRank_OverloadRetriesSameModel(t *testing.T) {
	p := &scriptedProvider{fn: func(m string, n int) (string, error) {
		if n < 3 {
			return "", &model.HTTPError{StatusCode: 503}
		}
		return goodReply, nil
	}}
	s, delays := newTestService(p, "m1", "m2")

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Heuristic || got.Model != "m1" {
		t.Errorf("got heuristic=%v model=%q, want m1", got.Heuristic, got.Model)
	}
	if !slices.Equal(p.calls, []string{"m1", "m1", "m1"}) {
		t.Errorf("got calls %v, want three on m1", p.calls)
	}
	if len(*delays) != 2 {
		t.Errorf("got %d sleeps, want 2", len(*delays))
	}
}

func TestRank_FallsBackToNextModel(t *testing.T) {
	p := &scriptedProvider{fn: func(m string, n int) (string, error) {
		if m == "m1" {
			return "", errors.New("model is overloaded")
		}
		return goodReply, nil
	}}
	s, _ := newTestService(p, "m1", "m2")

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "m2" {
		t.Errorf("got model %q, want m2", got.Model)
	}
	if !slices.Equal(p.calls, []string{"m1", "m1", "m1", "m2"}) {
		t.Errorf("got calls %v", p.calls)
	}
}

func TestRank_EveryModelOverloadedUsesHeuristic(t *testing.T) {
	p := &scriptedProvider{fn: func(string, int) (string, error) {
		return "", &model.HTTPError{StatusCode: 429}
	}}
	s, delays := newTestService(p, "m1", "m2")

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
	if err != nil {
		t.Fatalf("got error %v, want heuristic results", err)
	}
	if !got.Heuristic || len(got.Results) != 3 {
		t.Fatalf("got %+v, want 3 heuristic results", got)
	}
	if len(p.calls) != 6 || len(*delays) != 4 {
		t.Errorf("got %d calls and %d sleeps, want 6 and 4", len(p.calls), len(*delays))
	}
	if got.Results[0].Record.URL != "https://www.upwork.com/jobs/~01" {
		t.Errorf("heuristic top = %q, want the scraping job", got.Results[0].Record.URL)
	}
}

func TestRank_NonOverloadAbortsChain(t *testing.T) {
	p := &scriptedProvider{fn: func(string, int) (string, error) {
		return "", &model.HTTPError{StatusCode: 400, Err: errors.New("bad request")}
	}}
	s, delays := newTestService(p, "m1", "m2")

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Heuristic {
		t.Error("expected heuristic fallback")
	}
	if len(p.calls) != 1 || len(*delays) != 0 {
		t.Errorf("got %d calls and %d sleeps, want 1 and 0", len(p.calls), len(*delays))
	}
}

func TestRank_ConfigErrorsSurface(t *testing.T) {
	for _, sentinel := range []error{model.ErrInvalidAPIKey, model.ErrMissingAPIKey} {
		p := &scriptedProvider{fn: func(string, int) (string, error) {
			return "", fmt.Errorf("llm m1: %w", sentinel)
		}}
		s, _ := newTestService(p, "m1", "m2")

		_, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
		if !errors.Is(err, sentinel) {
			t.Errorf("got %v, want %v", err, sentinel)
		}
		if len(p.calls) != 1 {
			t.Errorf("got %d calls, want 1", len(p.calls))
		}
	}
}

func TestRank_UnusableReplyUsesHeuristic(t *testing.T) {
	p := &scriptedProvider{fn: func(string, int) (string, error) { return "I cannot rank these.", nil }}
	s, _ := newTestService(p, "m1")

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Heuristic {
		t.Error("expected heuristic fallback")
	}
}

func TestRank_NilProviderIsHeuristicOnly(t *testing.T) {
	s := NewService(nil, Options{}, discardLogger())
	got, err := s.Rank(context.Background(), sampleRecords(), 2, model.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Heuristic || len(got.Results) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestRank_FilterRunsFirst(t *testing.T) {
	var prompt string
	p := &scriptedProvider{fn: func(string, int) (string, error) { return "[]", nil }}
	s, _ := newTestService(p, "m1")
	s.provider = providerFunc(func(req ai.CompletionRequest) (string, error) {
		prompt = req.User
		return p.fn(req.Model, 1)
	})

	got, err := s.Rank(context.Background(), sampleRecords(), 10, model.Preferences{ExcludeKeywords: []string{"logo"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prompt, "Logo design") {
		t.Error("excluded record reached the prompt")
	}
	for _, r := range got.Results {
		if r.Record.Title == "Logo design" {
			t.Error("excluded record ranked")
		}
	}
}

func TestRank_EmptyInput(t *testing.T) {
	s, _ := newTestService(&scriptedProvider{}, "m1")
	got, err := s.Rank(context.Background(), nil, 5, model.Preferences{})
	if err != nil || got.Results == nil || len(got.Results) != 0 {
		t.Errorf("got %+v, %v; want empty non-nil results", got, err)
	}
}

func TestPrompt_TruncatesSummaries(t *testing.T) {
	var user string
	s, _ := newTestService(providerFunc(func(req ai.CompletionRequest) (string, error) {
		user = req.User
		return "[]", nil
	}), "m1")

	var recs []model.JobRecord
	for i := range 60 {
		recs = append(recs, model.JobRecord{
			Title:       fmt.Sprintf("job-%02d %s", i, strings.Repeat("t", 200)),
			Description: strings.Repeat("d", 900),
			Skills:      []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"},
		})
	}
	s.Rank(context.Background(), recs, 10, model.Preferences{})

	if !strings.Contains(user, "first 50") {
		t.Error("prompt does not cap at 50 summaries")
	}
	if strings.Contains(user, "job-50") {
		t.Error("record beyond the cap reached the prompt")
	}
	if strings.Contains(user, strings.Repeat("d", 501)) {
		t.Error("description not truncated to 500")
	}
	if strings.Contains(user, strings.Repeat("t", 134)) {
		t.Error("title not truncated to 140")
	}
	if strings.Contains(user, `"11"`) {
		t.Error("skills not capped at 10")
	}
}

type providerFunc func(req ai.CompletionRequest) (string, error)

func (f providerFunc) Name() string { return "func" }

func (f providerFunc) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	return f(req)
}

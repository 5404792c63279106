package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxBatchLines caps how many records one batch message lists.
const maxBatchLines = 10

// SlackNotifier posts batch summaries and ranked jobs to a Slack channel via
// Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	pause      time.Duration // between per-job messages
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		pause:      500 * time.Millisecond,
		logger:     logger,
	}
}

// NotifyBatch sends one message summarising a collected batch.
func (s *SlackNotifier) NotifyBatch(ctx context.Context, b model.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}
	if err := s.send(ctx, buildBatchPayload(b)); err != nil {
		return fmt.Errorf("slack batch %s: %w", b.ID, err)
	}
	s.logger.Info("slack batch message sent", "batch_id", b.ID, "batch_size", len(b.Records))
	return nil
}

// NotifyRanking sends each ranked job as a separate Block Kit message.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) NotifyRanking(ctx context.Context, results []model.RankedResult) error {
	if len(results) == 0 {
		return nil
	}

	failures := 0
	for i, r := range results {
		if i > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pause):
			}
		}
		if err := s.send(ctx, buildRankedPayload(i+1, r)); err != nil {
			s.logger.Error("slack notification failed", "title", r.Record.Title, "error", err)
			failures++
		}
	}

	if failures == len(results) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", len(results)-failures, "failed", failures)
	return nil
}

func (s *SlackNotifier) send(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", int(retryAfter.Seconds()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	retryAfter := model.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return resp.StatusCode, retryAfter, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

// SendTestMessage sends a sample ranked job to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	rating := 4.9
	proposals := 3
	score := 87.0
	reason := "Test notification: integration verified"
	rec := model.JobRecord{
		IdentityKey:    "test-001",
		Title:          "Test Notification: Playwright scraper behind Cloudflare",
		Description:    "This is a test message from jobtap.",
		URL:            "https://www.upwork.com/nx/search/jobs/",
		Budget:         &model.Budget{Kind: model.BudgetHourly, Min: 40, Max: 60, Currency: "USD"},
		Skills:         []string{"Playwright", "Go"},
		Client:         model.Client{Name: "jobtap", Rating: &rating},
		ProposalsCount: &proposals,
		CollectedAt:    time.Now(),
		Source:         "test",
		Score:          &score,
		ScoreReason:    &reason,
	}
	return n.NotifyRanking(ctx, []model.RankedResult{{Record: rec, Score: score, Reason: reason}})
}

func buildRankedPayload(position int, r model.RankedResult) slackPayload {
	rec := r.Record
	budget := rec.Budget.String()
	if budget == "" {
		budget = "Not stated"
	}
	proposals := "Unknown"
	if rec.ProposalsCount != nil {
		proposals = strconv.Itoa(*rec.ProposalsCount)
	}
	client := "Unknown"
	if rec.Client.Rating != nil {
		client = fmt.Sprintf("%.1f★", *rec.Client.Rating)
	}
	if rec.Client.Country != "" {
		client += " · " + rec.Client.Country
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("#%d · %.0f · %s", position, r.Score, rec.Title)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Budget:*\n" + budget},
				{Type: "mrkdwn", Text: "*Proposals:*\n" + proposals},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Client:*\n" + client},
				{Type: "mrkdwn", Text: "*Skills:*\n" + orDash(strings.Join(rec.Skills, ", "))},
			},
		},
	}
	if r.Reason != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Why:* " + r.Reason},
		})
	}
	blocks = append(blocks,
		slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Open Job"},
					URL:   rec.URL,
					Style: "primary",
				},
			},
		},
		slackBlock{Type: "divider"},
	)
	return slackPayload{Blocks: blocks}
}

func buildBatchPayload(b model.Batch) slackPayload {
	var lines []string
	for i, r := range b.Records {
		if i == maxBatchLines {
			lines = append(lines, fmt.Sprintf("…and %d more", len(b.Records)-maxBatchLines))
			break
		}
		line := "• <" + r.URL + "|" + r.Title + ">"
		if r.URL == "" {
			line = "• " + r.Title
		}
		if budget := r.Budget.String(); budget != "" {
			line += " · " + budget
		}
		lines = append(lines, line)
	}

	noun := "jobs"
	if len(b.Records) == 1 {
		noun = "job"
	}
	return slackPayload{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("🧲 %d new %s collected", len(b.Records), noun)},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")},
		},
		{Type: "divider"},
	}}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobtap/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes batch and ranking events to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyBatch logs one summary line plus one line per new record.
// Returns nil (logging does not fail).
func (n *LogNotifier) NotifyBatch(_ context.Context, b model.Batch) error {
	n.logger.Info("batch collected", "batch_id", b.ID, "session_id", b.SessionID, "batch_size", len(b.Records))
	for _, r := range b.Records {
		args := []any{"title", r.Title, "url", r.URL, "source", r.Source}
		if r.Budget != nil {
			args = append(args, "budget", r.Budget.String())
		}
		if r.PostedAt != nil {
			args = append(args, "posted_at", *r.PostedAt)
		}
		n.logger.Info("new job", args...)
	}
	return nil
}

// NotifyRanking logs each result in rank order.
func (n *LogNotifier) NotifyRanking(_ context.Context, results []model.RankedResult) error {
	for i, r := range results {
		n.logger.Info("ranked job",
			"rank", i+1,
			"score", r.Score,
			"title", r.Record.Title,
			"url", r.Record.URL,
			"reason", r.Reason,
		)
	}
	return nil
}

package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is used when notification.channel is empty.
const DefaultRedisChannel = "jobtap:events"

// Event types published on the channel.
const (
	EventBatchCollected = "EVENT_BATCH_COLLECTED"
	EventJobsRanked     = "EVENT_JOBS_RANKED"
)

var _ model.Notifier = (*RedisNotifier)(nil)

// RedisNotifier publishes batch and ranking events as JSON on a pub/sub
// channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisNotifier publishes to channel (DefaultRedisChannel when empty).
func NewRedisNotifier(rdb *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel, logger: logger}
}

type event struct {
	Type      string               `json:"type"`
	BatchID   string               `json:"batchId,omitempty"`
	SessionID string               `json:"sessionId,omitempty"`
	Count     int                  `json:"count"`
	Records   []model.JobRecord    `json:"records,omitempty"`
	Ranked    []model.RankedResult `json:"ranked,omitempty"`
	At        time.Time            `json:"at"`
}

func batchEvent(b model.Batch) event {
	return event{
		Type:      EventBatchCollected,
		BatchID:   b.ID,
		SessionID: b.SessionID,
		Count:     len(b.Records),
		Records:   b.Records,
		At:        b.EmittedAt,
	}
}

func rankingEvent(results []model.RankedResult, at time.Time) event {
	return event{
		Type:   EventJobsRanked,
		Count:  len(results),
		Ranked: results,
		At:     at,
	}
}

// NotifyBatch publishes an EVENT_BATCH_COLLECTED message.
func (n *RedisNotifier) NotifyBatch(ctx context.Context, b model.Batch) error {
	return n.publish(ctx, batchEvent(b))
}

// NotifyRanking publishes an EVENT_JOBS_RANKED message.
func (n *RedisNotifier) NotifyRanking(ctx context.Context, results []model.RankedResult) error {
	return n.publish(ctx, rankingEvent(results, time.Now().UTC()))
}

func (n *RedisNotifier) publish(ctx context.Context, ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	receivers, err := n.rdb.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	n.logger.Debug("redis event published", "type", ev.Type, "channel", n.channel, "receivers", receivers)
	return nil
}

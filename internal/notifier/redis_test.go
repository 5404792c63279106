package notifier

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/redis/go-redis/v9"
)

func TestBatchEvent(t *testing.T) {
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	ev := batchEvent(model.Batch{ID: "b1", SessionID: "s1", Records: []model.JobRecord{sampleRecord("x")}, EmittedAt: at})

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	json.Unmarshal(raw, &got)
	if got["type"] != EventBatchCollected || got["batchId"] != "b1" || got["sessionId"] != "s1" || got["count"] != 1.0 {
		t.Errorf("got %v", got)
	}
	if _, ok := got["ranked"]; ok {
		t.Error("batch event carries ranked results")
	}
}

func TestRankingEvent(t *testing.T) {
	ev := rankingEvent([]model.RankedResult{sampleRanked("a", 80)}, time.Now())
	if ev.Type != EventJobsRanked || ev.Count != 1 || len(ev.Ranked) != 1 || ev.BatchID != "" {
		t.Errorf("got %+v", ev)
	}
}

func TestRedisNotifier_DefaultChannel(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	if n := NewRedisNotifier(rdb, "", discardLogger()); n.channel != DefaultRedisChannel {
		t.Errorf("channel = %q, want %q", n.channel, DefaultRedisChannel)
	}
}

func TestRedisNotifier_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer rdb.Close()

	n := NewRedisNotifier(rdb, "jobs", discardLogger())
	err := n.NotifyBatch(context.Background(), model.Batch{ID: "b1"})
	if err == nil || !strings.Contains(err.Error(), "publish "+EventBatchCollected) {
		t.Errorf("got %v, want publish error", err)
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-redis-url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

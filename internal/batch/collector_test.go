package batch

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]model.JobRecord
	done    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{}, 10)}
}

func (r *recordingSink) sink(records []model.JobRecord) {
	r.mu.Lock()
	r.batches = append(r.batches, records)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingSink) snapshot() [][]model.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]model.JobRecord(nil), r.batches...)
}

func TestCollector_BurstBecomesOneBatch(t *testing.T) {
	rs := newRecordingSink()
	c := NewCollector(50*time.Millisecond, rs.sink, discardLogger())

	for _, title := range []string{"a", "b", "c", "d"} {
		c.Add(model.JobRecord{Title: title})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-rs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	// give a stray second flush a chance to show up
	time.Sleep(100 * time.Millisecond)

	batches := rs.snapshot()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	got := batches[0]
	if len(got) != 4 {
		t.Fatalf("got %d records, want 4", len(got))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if got[i].Title != want {
			t.Errorf("record %d = %q, want %q", i, got[i].Title, want)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("got %d pending after flush, want 0", c.Pending())
	}
}

func TestCollector_SeparateWindows(t *testing.T) {
	rs := newRecordingSink()
	c := NewCollector(20*time.Millisecond, rs.sink, discardLogger())

	c.Add(model.JobRecord{Title: "a"})
	<-rs.done
	c.Add(model.JobRecord{Title: "b"})
	<-rs.done

	batches := rs.snapshot()
	if len(batches) != 2 || batches[0][0].Title != "a" || batches[1][0].Title != "b" {
		t.Errorf("got %+v, want two single-record batches", batches)
	}
}

func TestCollector_FlushAndClose(t *testing.T) {
	rs := newRecordingSink()
	c := NewCollector(time.Hour, rs.sink, discardLogger())

	c.Add(model.JobRecord{Title: "a"})
	c.Flush()
	if got := rs.snapshot(); len(got) != 1 {
		t.Fatalf("got %d batches after Flush, want 1", len(got))
	}

	c.Add(model.JobRecord{Title: "b"})
	c.Close()
	c.Add(model.JobRecord{Title: "ignored"})
	got := rs.snapshot()
	if len(got) != 2 || got[1][0].Title != "b" {
		t.Fatalf("got %+v, want second batch with b", got)
	}
	if c.Pending() != 0 {
		t.Error("add after close was accepted")
	}
}

func TestCollector_FlushEmptyIsNoop(t *testing.T) {
	rs := newRecordingSink()
	c := NewCollector(0, rs.sink, discardLogger())
	c.Flush()
	if len(rs.snapshot()) != 0 {
		t.Error("empty flush emitted a batch")
	}
	if c.delay != DefaultDelay {
		t.Errorf("got delay %v, want default", c.delay)
	}
}

func TestCollector_Discard(t *testing.T) {
	rs := newRecordingSink()
	c := NewCollector(10*time.Millisecond, rs.sink, discardLogger())
	c.Add(model.JobRecord{Title: "a"})
	c.Discard()
	time.Sleep(50 * time.Millisecond)
	if len(rs.snapshot()) != 0 {
		t.Error("discarded records were emitted")
	}
}

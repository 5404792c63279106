// Package pipeline wires the taps, normalizer, deduplicator and batch
// collector into one collection session.
package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/amishk599/jobtap/internal/batch"
	"github.com/amishk599/jobtap/internal/dedup"
	"github.com/amishk599/jobtap/internal/extract"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/normalize"
	"github.com/amishk599/jobtap/internal/tap"
	"github.com/google/uuid"
)

const sinkTimeout = 10 * time.Second

// Options configure a Session. Zero values use package defaults.
type Options struct {
	Table           *normalize.Table
	SiteHost        string
	MaxDepth        int
	Debounce        time.Duration
	EndpointMarkers []string
	MaxBodyBytes    int64
	RescanDelay     time.Duration
}

// Session owns the per-session collection state. Records flow
// tap -> extractor -> normalizer -> deduplicator -> collector, and each
// completed batch is written to the store and announced to the notifier.
type Session struct {
	ID string

	normalizer *normalize.Normalizer
	dedup      *dedup.Deduplicator
	collector  *batch.Collector
	inspector  *tap.Inspector
	dom        *tap.DOMTap

	store    model.JobStore
	notifier model.Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	batches int
}

// NewSession builds a Session around store and notifier.
func NewSession(opts Options, store model.JobStore, notifier model.Notifier, logger *slog.Logger) *Session {
	table := normalize.DefaultTable
	if opts.Table != nil {
		table = *opts.Table
	}
	s := &Session{
		ID:         uuid.NewString(),
		normalizer: normalize.New(table, opts.SiteHost, logger),
		dedup:      dedup.New(),
		store:      store,
		notifier:   notifier,
		logger:     logger,
	}
	s.collector = batch.NewCollector(opts.Debounce, s.emit, logger)

	extractor := extract.NewJSONExtractor(s.normalizer.LooksLikeJob, opts.MaxDepth)
	s.inspector = tap.NewInspector(extractor, s, tap.InspectorOptions{
		EndpointMarkers: opts.EndpointMarkers,
		MaxBodyBytes:    opts.MaxBodyBytes,
	}, logger)
	s.dom = tap.NewDOMTap(s, tap.DOMOptions{
		RescanDelay: opts.RescanDelay,
		MaxDepth:    opts.MaxDepth,
	}, logger)
	return s
}

// Submit normalizes and deduplicates candidates, passing new records on to
// the batch collector. It returns how many records were new.
func (s *Session) Submit(candidates iter.Seq[model.RawCandidate]) int {
	added := 0
	for c := range candidates {
		rec, ok := s.normalizer.Normalize(c)
		if !ok {
			continue
		}
		res := s.dedup.TryInsert(rec)
		if !res.Inserted {
			continue
		}
		s.collector.Add(res.Record)
		added++
	}
	return added
}

func (s *Session) emit(records []model.JobRecord) {
	b := model.Batch{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Records:   records,
		EmittedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	res, err := s.store.AddBatch(ctx, records)
	if err != nil {
		s.logger.Error("store batch failed", "batch_id", b.ID, "batch_size", len(records), "error", err)
	} else {
		s.logger.Info("batch collected", "batch_id", b.ID, "added", res.Added, "total", res.Total)
	}

	if err := s.notifier.NotifyBatch(ctx, b); err != nil {
		s.logger.Error("batch notification failed", "batch_id", b.ID, "error", err)
	}

	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
}

// Inspector returns the session's network tap inspector.
func (s *Session) Inspector() *tap.Inspector { return s.inspector }

// DOM returns the session's DOM tap.
func (s *Session) DOM() *tap.DOMTap { return s.dom }

// Transport wraps base so its responses feed this session.
func (s *Session) Transport(base http.RoundTripper) http.RoundTripper {
	return tap.Wrap(base, s.inspector)
}

// Records returns every record collected this session in arrival order.
func (s *Session) Records() []model.JobRecord {
	return s.dedup.All()
}

// Stats counts a session's records.
type Stats struct {
	Records int `json:"records"`
	Pending int `json:"pending"` // collected but not yet emitted in a batch
	Batches int `json:"batches"`
}

// Stats reports collected, pending and batched counts.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	batches := s.batches
	s.mu.Unlock()
	return Stats{
		Records: s.dedup.Len(),
		Pending: s.collector.Pending(),
		Batches: batches,
	}
}

// Flush waits for in-flight inspections and emits whatever is pending.
func (s *Session) Flush() {
	s.inspector.Wait()
	s.collector.Flush()
}

// Reset clears collected records, pending batches and the store.
func (s *Session) Reset(ctx context.Context) error {
	s.inspector.Wait()
	s.collector.Discard()
	s.dedup.Reset()
	return s.store.Reset(ctx)
}

// Close flushes pending records; later submissions are still deduplicated
// but no longer batched.
func (s *Session) Close() {
	s.inspector.Wait()
	s.collector.Close()
}

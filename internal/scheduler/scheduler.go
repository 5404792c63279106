package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/tap"
	"github.com/robfig/cron/v3"
)

// Target kinds. KindAuto routes by the response content type.
const (
	KindAuto = ""
	KindJSON = "json"
	KindHTML = "html"
)

// Target is one page the watcher re-fetches every cycle.
type Target struct {
	Name    string
	URL     string
	Kind    string
	Fetcher model.PageFetcher
}

// CycleStats summarises one pass over all targets.
type CycleStats struct {
	Fetched int
	Failed  int
	Added   int
}

// Scheduler re-fetches watch targets on a cron schedule and feeds JSON
// bodies to the network tap and HTML pages to the DOM tap. Cycles never
// overlap: a tick that fires while the previous cycle runs is skipped.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	targets   []Target
	inspector *tap.Inspector
	dom       *tap.DOMTap
	logger    *slog.Logger

	mu     sync.Mutex
	cycles int
}

// New creates a Scheduler for a cron spec such as "@every 10m".
func New(spec string, targets []Target, inspector *tap.Inspector, dom *tap.DOMTap, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:      spec,
		targets:   targets,
		inspector: inspector,
		dom:       dom,
		logger:    logger,
	}
}

// Run registers the cycle, runs one immediately, and blocks until ctx is
// cancelled. It returns nil on graceful shutdown after the running cycle
// finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}

	s.logger.Info("starting watch scheduler", "schedule", s.spec, "targets", len(s.targets))
	s.cron.Start()
	s.RunOnce(ctx)

	<-ctx.Done()
	s.logger.Info("shutting down watch scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce fetches every target once, sequentially, and returns what it saw.
func (s *Scheduler) RunOnce(ctx context.Context) CycleStats {
	var stats CycleStats
	for _, t := range s.targets {
		if ctx.Err() != nil {
			break
		}
		page, err := t.Fetcher.Fetch(ctx)
		if err != nil {
			stats.Failed++
			s.logger.Error("watch fetch failed", "target", t.Name, "url", t.URL, "error", err)
			continue
		}
		stats.Fetched++
		added := s.route(t, page)
		stats.Added += added
		s.logger.Debug("watch target scanned", "target", t.Name, "bytes", len(page.Body), "added", added)
	}

	s.mu.Lock()
	s.cycles++
	n := s.cycles
	s.mu.Unlock()
	s.logger.Info("watch cycle complete", "cycle", n, "fetched", stats.Fetched, "failed", stats.Failed, "added", stats.Added)
	return stats
}

// Cycles returns how many cycles have completed.
func (s *Scheduler) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

func (s *Scheduler) route(t Target, page model.Page) int {
	url := page.URL
	if url == "" {
		url = t.URL
	}
	kind := strings.ToLower(t.Kind)
	if kind == KindAuto {
		ct := strings.ToLower(page.ContentType)
		switch {
		case strings.Contains(ct, "json"):
			kind = KindJSON
		case strings.Contains(ct, "html"):
			kind = KindHTML
		}
	}

	switch kind {
	case KindJSON:
		return s.inspector.InspectBody(url, page.Body)
	case KindHTML:
		if s.dom == nil {
			return 0
		}
		return s.dom.ScanHTML(string(page.Body), url)
	default:
		s.logger.Debug("watch target has unknown content type", "target", t.Name, "content_type", page.ContentType)
		return 0
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

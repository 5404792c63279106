package tap

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobtap/internal/extract"
	"github.com/amishk599/jobtap/internal/model"
)

// DefaultCardStrategies are tried in order; the first selector with at least
// one match is used for the whole scan.
var DefaultCardStrategies = []string{
	`article[data-test="job-tile"]`,
	`div[data-test="job-tile"]`,
	`section[data-test="job-tile"]`,
	`[data-test*="job-tile"]`,
	`article[data-test*="JobTile"]`,
	`section[data-ev-sublocation*="job_tile"]`,
	`.job-tile`,
	`[class*="job-tile"]`,
	`article[data-ev-label*="search_results"]`,
	`div[data-ev-label*="search_results"]`,
	`section[class*="JobTile"]`,
	`div[class*="JobTile"]`,
	`[data-qa="job-tile"]`,
	`.air3-card-section`,
	`.up-card-section`,
	`article.up-card`,
	`section.up-card`,
	`[data-item-index]`,
	`.up-card`,
}

// DefaultRescanDelay is how long the DOM tap waits after the last relevant
// insertion before re-scanning.
const DefaultRescanDelay = time.Second

// mutationPrecheck selects inserted nodes that may contain job cards.
const mutationPrecheck = `[data-test*="job-tile"], .job-tile, article, .up-card, section, [data-item-index]`

var fallbackRoots = []string{"main", `[role="main"]`, "#main-content", "body"}

// Mutation describes content inserted into an observed page.
type Mutation struct {
	PageURL  string
	Document string   // page HTML after the insertion; empty keeps the last one seen
	Added    []string // outer HTML of each inserted node
}

// DOMTap finds job cards in page snapshots.
type DOMTap struct {
	strategies []string
	rules      extract.FieldRules
	fallback   *extract.DOMExtractor
	submitter  Submitter
	delay      time.Duration
	logger     *slog.Logger
}

// DOMOptions tune a DOMTap. Zero values use the package defaults.
type DOMOptions struct {
	Strategies  []string
	Rules       *extract.FieldRules
	RescanDelay time.Duration
	MaxDepth    int
}

// NewDOMTap returns a DOM tap feeding submitter.
func NewDOMTap(submitter Submitter, opts DOMOptions, logger *slog.Logger) *DOMTap {
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultCardStrategies
	}
	rules := extract.DefaultFieldRules
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	delay := opts.RescanDelay
	if delay <= 0 {
		delay = DefaultRescanDelay
	}
	return &DOMTap{
		strategies: strategies,
		rules:      rules,
		fallback:   extract.NewDOMExtractor(rules, opts.MaxDepth),
		submitter:  submitter,
		delay:      delay,
		logger:     logger,
	}
}

// Scan submits every card found in doc and returns the number of new
// records. When no strategy matches, a structural walk of the main content
// area is used instead.
func (d *DOMTap) Scan(doc *goquery.Document, pageURL string) (added int) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("dom scan panicked", "url", pageURL, "panic", r)
			added = 0
		}
	}()

	for _, sel := range d.strategies {
		cards := doc.Find(sel)
		if cards.Length() == 0 {
			continue
		}
		d.logger.Debug("dom strategy matched", "selector", sel, "cards", cards.Length())
		return d.submitter.Submit(d.cardSeq(cards, pageURL))
	}

	for _, sel := range fallbackRoots {
		root := doc.Find(sel).First()
		if root.Length() > 0 {
			return d.submitter.Submit(d.fallback.Candidates(root, pageURL))
		}
	}
	return d.submitter.Submit(d.fallback.Candidates(doc.Selection, pageURL))
}

// ScanHTML parses page and scans it.
func (d *DOMTap) ScanHTML(page, pageURL string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		d.logger.Debug("parse page failed", "url", pageURL, "error", err)
		return 0
	}
	return d.Scan(doc, pageURL)
}

func (d *DOMTap) cardSeq(cards *goquery.Selection, pageURL string) iter.Seq[model.RawCandidate] {
	return func(yield func(model.RawCandidate) bool) {
		cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
			c, ok := extract.CardCandidate(card, d.rules, pageURL)
			if !ok {
				return true
			}
			return yield(c)
		})
	}
}

// MayContainJobs is the cheap check applied to inserted nodes before a
// re-scan is scheduled.
func MayContainJobs(added []string) bool {
	for _, frag := range added {
		lower := strings.ToLower(frag)
		if !strings.Contains(lower, "job") && !strings.Contains(lower, "<article") &&
			!strings.Contains(lower, "up-card") && !strings.Contains(lower, "<section") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(frag))
		if err != nil {
			continue
		}
		if doc.Find(mutationPrecheck).Length() > 0 {
			return true
		}
	}
	return false
}

// Observe consumes mutations until ctx is done or the channel is closed.
// Pages with relevant insertions are re-scanned once no further relevant
// insertion has arrived for the rescan delay. A mutation with a document but
// no added nodes is scanned right away.
func (d *DOMTap) Observe(ctx context.Context, mutations <-chan Mutation) error {
	latest := make(map[string]string)
	dirty := make(map[string]bool)

	timer := time.NewTimer(d.delay)
	if !timer.Stop() {
		<-timer.C
	}

	rescan := func() {
		for url := range dirty {
			if page := latest[url]; page != "" {
				d.ScanHTML(page, url)
			}
		}
		clear(dirty)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-mutations:
			if !ok {
				rescan()
				return nil
			}
			if m.Document != "" {
				latest[m.PageURL] = m.Document
			}
			if len(m.Added) == 0 {
				if m.Document != "" {
					d.ScanHTML(m.Document, m.PageURL)
				}
				continue
			}
			if !MayContainJobs(m.Added) {
				continue
			}
			dirty[m.PageURL] = true
			timer.Reset(d.delay)
		case <-timer.C:
			rescan()
		}
	}
}

// Package tap observes traffic and page content and submits whatever looks
// like job postings to the collection pipeline. Taps never alter what the
// observed party receives.
package tap

import (
	"bytes"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/amishk599/jobtap/internal/extract"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/tidwall/gjson"
)

// Submitter consumes candidate sequences and reports how many new records
// they produced.
type Submitter interface {
	Submit(candidates iter.Seq[model.RawCandidate]) int
}

// DefaultEndpointMarkers select which response URLs are worth inspecting.
var DefaultEndpointMarkers = []string{"/api/", "graphql", "search", "/jobs/", "marketplace"}

// DefaultMaxBodyBytes caps how much of a response is buffered for inspection.
const DefaultMaxBodyBytes = 8 << 20

var hijackPrefixes = [][]byte{
	[]byte(")]}'"),
	[]byte("for(;;);"),
	[]byte("while(1);"),
}

// StripHijackPrefix removes an anti-JSON-hijacking prefix such as `)]}'`
// along with the comma and line break that usually follow it.
func StripHijackPrefix(body []byte) []byte {
	trimmed := bytes.TrimLeft(body, " \t\r\n\ufeff")
	for _, p := range hijackPrefixes {
		if bytes.HasPrefix(trimmed, p) {
			rest := trimmed[len(p):]
			rest = bytes.TrimPrefix(rest, []byte(","))
			return bytes.TrimLeft(rest, " \t\r\n")
		}
	}
	return trimmed
}

// looksLikeJSON reports whether body starts a JSON object or array.
func looksLikeJSON(body []byte) bool {
	return len(body) > 0 && (body[0] == '{' || body[0] == '[')
}

func isEventStream(body []byte) bool {
	return bytes.HasPrefix(body, []byte("event:")) || bytes.HasPrefix(body, []byte("data:"))
}

// InspectorOptions tune which responses are inspected.
type InspectorOptions struct {
	EndpointMarkers []string
	MaxBodyBytes    int64
}

// Inspector decides whether a response is interesting and, if so, parses
// it and feeds the structural extractor. Every failure is swallowed.
type Inspector struct {
	extractor *extract.JSONExtractor
	submitter Submitter
	endpoint  *regexp.Regexp
	maxBody   int64
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

// NewInspector builds an Inspector. Zero-valued options fall back to
// DefaultEndpointMarkers and DefaultMaxBodyBytes.
func NewInspector(extractor *extract.JSONExtractor, submitter Submitter, opts InspectorOptions, logger *slog.Logger) *Inspector {
	markers := opts.EndpointMarkers
	if len(markers) == 0 {
		markers = DefaultEndpointMarkers
	}
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(m))
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Inspector{
		extractor: extractor,
		submitter: submitter,
		endpoint:  regexp.MustCompile(strings.Join(quoted, "|")),
		maxBody:   maxBody,
		logger:    logger,
	}
}

// Wants reports whether a response with this URL and content type should be
// inspected.
func (i *Inspector) Wants(url, contentType string) bool {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return false
	}
	return i.endpoint.MatchString(strings.ToLower(url))
}

// Inspect parses body and submits its candidates. It returns the number of
// new records, or zero when the body was skipped or failed to parse.
func (i *Inspector) Inspect(url, contentType string, body []byte) int {
	if !i.Wants(url, contentType) {
		return 0
	}
	return i.InspectBody(url, body)
}

// InspectBody is Inspect without the URL and content-type gate, for bodies
// the caller already knows to be JSON.
func (i *Inspector) InspectBody(url string, body []byte) (added int) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Debug("inspect panicked", "url", url, "panic", r)
			added = 0
		}
	}()

	if int64(len(body)) > i.maxBody {
		i.logger.Debug("skipping oversized body", "url", url, "bytes", len(body))
		return 0
	}
	body = StripHijackPrefix(body)
	if isEventStream(body) || !looksLikeJSON(body) {
		return 0
	}
	if !gjson.ValidBytes(body) {
		i.logger.Debug("skipping invalid json", "url", url)
		return 0
	}

	added = i.submitter.Submit(i.extractor.Candidates(gjson.ParseBytes(body), url))
	if added > 0 {
		i.logger.Debug("network tap collected jobs", "url", url, "added", added)
	}
	return added
}

// inspectAsync runs Inspect on its own goroutine so the caller is never
// delayed.
func (i *Inspector) inspectAsync(url, contentType string, body []byte) {
	i.inflight.Add(1)
	go func() {
		defer i.inflight.Done()
		i.Inspect(url, contentType, body)
	}()
}

// Wait blocks until every asynchronous inspection started so far is done.
func (i *Inspector) Wait() {
	i.inflight.Wait()
}

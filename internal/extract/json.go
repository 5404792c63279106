// Package extract walks nested payloads looking for things shaped like job
// postings. It does not know any site's schema; it only knows what a job
// looks like, as decided by a caller-supplied predicate.
package extract

import (
	"iter"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/tidwall/gjson"
)

// DefaultMaxDepth bounds how far the walkers descend.
const DefaultMaxDepth = 20

// Matcher reports whether a JSON node is a job posting.
type Matcher func(node gjson.Result) bool

// JSONExtractor yields every job-like object found in a JSON document.
type JSONExtractor struct {
	match    Matcher
	maxDepth int
}

// NewJSONExtractor returns an extractor using match to recognise jobs.
// maxDepth <= 0 means DefaultMaxDepth.
func NewJSONExtractor(match Matcher, maxDepth int) *JSONExtractor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &JSONExtractor{match: match, maxDepth: maxDepth}
}

// Candidates returns a lazy depth-first sequence over root. A matched node is
// emitted once and its subtree is not visited. The sequence can be ranged
// over any number of times; each pass starts again from root.
func (e *JSONExtractor) Candidates(root gjson.Result, origin string) iter.Seq[model.RawCandidate] {
	return func(yield func(model.RawCandidate) bool) {
		e.walk(root, 0, origin, yield)
	}
}

// walk returns false once the consumer has stopped.
func (e *JSONExtractor) walk(node gjson.Result, depth int, origin string, yield func(model.RawCandidate) bool) bool {
	if depth > e.maxDepth {
		return true
	}
	if !node.IsObject() && !node.IsArray() {
		return true
	}
	if node.IsObject() && e.match(node) {
		return yield(model.RawCandidate{
			Source: model.SourceNetwork,
			Origin: origin,
			Raw:    []byte(node.Raw),
		})
	}

	cont := true
	node.ForEach(func(_, child gjson.Result) bool {
		cont = e.walk(child, depth+1, origin, yield)
		return cont
	})
	return cont
}

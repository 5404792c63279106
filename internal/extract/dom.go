package extract

import (
	"encoding/json"
	"iter"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobtap/internal/model"
)

// FieldRules lists, per field, selectors tried in order inside a card.
type FieldRules struct {
	Title       []string
	Link        []string
	Description []string
	Budget      []string
	Posted      []string
	Proposals   []string
	Skills      []string
}

// DefaultFieldRules covers the card layouts the marketplace has shipped.
var DefaultFieldRules = FieldRules{
	Title: []string{
		`h4 a[href*="/jobs/"]`, `h3 a[href*="/jobs/"]`, `h2 a[href*="/jobs/"]`,
		`a[class*="job-title"]`, `.job-title-link`, `[data-test="job-title-link"]`,
		`[class*="JobTitle"]`, `a[class*="tile-title"]`, `.up-n-link`, `h4 a`, `h3 a`,
	},
	Link: []string{`a[href*="/jobs/~"]`, `a[href*="/jobs/"]`, `a[href*="/nx/jobs/"]`, `a[href*="/ab/jobs/"]`},
	Description: []string{
		`[data-test="job-description-text"]`, `[data-qa="job-description"]`,
		`[class*="job-description"]`, `[class*="JobDescription"]`, `.up-line-clamp-v2`,
		`[class*="description"]`, `p`,
	},
	Budget: []string{
		`[data-test="budget"]`, `[data-test*="budget"]`, `[class*="budget"]`, `[data-test="job-type"]`,
		`[data-test="is-fixed-price"]`, `span[class*="price"]`, `[class*="amount"]`, `small strong`, `strong`,
	},
	Posted:    []string{`[data-test="posted-on"]`, `[data-test*="posted"]`, `time`, `[class*="posted"]`},
	Proposals: []string{`[data-test="proposals"]`, `[data-test*="proposals"]`, `[class*="proposals"]`},
	Skills: []string{
		`[data-test="skill-badge"]`, `[data-test="attr-item"]`, `[data-test="token"]`,
		`.up-skill-badge`, `[class*="skill-badge"]`, `[class*="SkillBadge"]`,
	},
}

const minDescriptionLen = 20

var (
	ciphertextRegex   = regexp.MustCompile(`~([0-9a-zA-Z]+)`)
	budgetTextRegex   = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d{2})?(?:\s*-\s*\$[\d,]+(?:\.\d{2})?)?(?:\s*/\s*hr)?`)
	proposalTextRegex = regexp.MustCompile(`(?i)(\d+)\s*(?:proposals?|applicants?|bids?)`)
	experienceRegex   = regexp.MustCompile(`(?i)\b(entry level|intermediate|expert)\b`)
)

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// CardCandidate reads one card element into a flat candidate object using
// rules. It reports false when neither a title nor a description was found.
func CardCandidate(card *goquery.Selection, rules FieldRules, origin string) (model.RawCandidate, bool) {
	var title, href string
	for _, sel := range rules.Title {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		title = text(el)
		if h, ok := el.Attr("href"); ok {
			href = h
		} else if h, ok := el.Find("a").First().Attr("href"); ok {
			href = h
		}
		if title != "" {
			break
		}
	}
	if href == "" || title == "" {
		for _, sel := range rules.Link {
			link := card.Find(sel).First()
			h, ok := link.Attr("href")
			if !ok || h == "" {
				continue
			}
			if href == "" {
				href = h
			}
			if title == "" {
				title = text(link)
			}
			break
		}
	}

	var desc string
	for _, sel := range rules.Description {
		card.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if t := text(el); len(t) > minDescriptionLen {
				desc = t
				return false
			}
			return true
		})
		if desc != "" {
			break
		}
	}

	if title == "" && desc == "" {
		return model.RawCandidate{}, false
	}

	cardText := text(card)
	fields := map[string]any{
		"title":       title,
		"description": desc,
	}
	if href != "" {
		fields["url"] = href
		if m := ciphertextRegex.FindStringSubmatch(href); m != nil {
			fields["ciphertext"] = m[1]
		}
	}

	if budget := firstMatching(card, rules.Budget, looksLikeBudget); budget != "" {
		fields["budget"] = budget
	} else if m := budgetTextRegex.FindString(cardText); m != "" {
		fields["budget"] = m
	}

	for _, sel := range rules.Posted {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		posted := text(el)
		if posted == "" {
			posted, _ = el.Attr("datetime")
		}
		if posted != "" {
			fields["postedOn"] = posted
			break
		}
	}

	if p := firstMatching(card, rules.Proposals, func(string) bool { return true }); p != "" {
		fields["proposals"] = p
	} else if m := proposalTextRegex.FindStringSubmatch(cardText); m != nil {
		fields["proposals"] = m[1]
	}

	for _, sel := range rules.Skills {
		els := card.Find(sel)
		if els.Length() == 0 {
			continue
		}
		skills := make([]string, 0, els.Length())
		els.Each(func(_ int, el *goquery.Selection) {
			if t := text(el); t != "" {
				skills = append(skills, t)
			}
		})
		fields["skills"] = skills
		break
	}

	if m := experienceRegex.FindStringSubmatch(cardText); m != nil {
		fields["experienceLevel"] = m[1]
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return model.RawCandidate{}, false
	}
	return model.RawCandidate{Source: model.SourceDOM, Origin: origin, Raw: raw}, true
}

func firstMatching(card *goquery.Selection, selectors []string, accept func(string) bool) string {
	for _, sel := range selectors {
		var found string
		card.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if t := text(el); t != "" && accept(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func looksLikeBudget(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "$") || strings.Contains(lower, "fixed") || strings.Contains(lower, "hourly")
}

const jobLinkSelector = `a[href*="/jobs/"]`

// DOMExtractor is the structural fallback for pages where no known card
// selector matches. A card is the outermost element that holds exactly one
// distinct job link with visible text.
type DOMExtractor struct {
	rules    FieldRules
	maxDepth int
}

// NewDOMExtractor returns a DOM walker. maxDepth <= 0 means DefaultMaxDepth.
func NewDOMExtractor(rules FieldRules, maxDepth int) *DOMExtractor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &DOMExtractor{rules: rules, maxDepth: maxDepth}
}

// Candidates walks root depth-first with the same contract as
// JSONExtractor.Candidates.
func (e *DOMExtractor) Candidates(root *goquery.Selection, origin string) iter.Seq[model.RawCandidate] {
	return func(yield func(model.RawCandidate) bool) {
		root.EachWithBreak(func(_ int, node *goquery.Selection) bool {
			return e.walk(node, 0, origin, yield)
		})
	}
}

func (e *DOMExtractor) walk(node *goquery.Selection, depth int, origin string, yield func(model.RawCandidate) bool) bool {
	if depth > e.maxDepth {
		return true
	}
	if isCard(node) {
		if c, ok := CardCandidate(node, e.rules, origin); ok {
			return yield(c)
		}
	}
	cont := true
	node.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		cont = e.walk(child, depth+1, origin, yield)
		return cont
	})
	return cont
}

var cardTags = map[string]bool{
	"article": true,
	"section": true,
	"li":      true,
	"div":     true,
}

func isCard(node *goquery.Selection) bool {
	if !cardTags[goquery.NodeName(node)] {
		return false
	}
	hrefs := make(map[string]bool)
	titled := false
	node.Find(jobLinkSelector).Each(func(_ int, a *goquery.Selection) {
		h, _ := a.Attr("href")
		hrefs[h] = true
		if text(a) != "" {
			titled = true
		}
	})
	return len(hrefs) == 1 && titled
}

// Package normalize maps shape-unknown job payloads onto model.JobRecord.
package normalize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/tidwall/gjson"
)

// DefaultSiteHost is used to synthesize job links from a ciphertext.
const DefaultSiteHost = "www.upwork.com"

const defaultCurrency = "USD"

// Normalizer turns a RawCandidate into a JobRecord using a synonym Table.
// It never fails: an attribute that cannot be read falls back to its zero
// value.
type Normalizer struct {
	table    Table
	siteHost string
	logger   *slog.Logger
}

// New returns a Normalizer for the given table. An empty siteHost falls back
// to DefaultSiteHost.
func New(table Table, siteHost string, logger *slog.Logger) *Normalizer {
	if siteHost == "" {
		siteHost = DefaultSiteHost
	}
	return &Normalizer{table: table, siteHost: siteHost, logger: logger}
}

// LooksLikeJob reports whether node carries both a title-like and a
// description-like field. The structural extractor uses this to decide where
// to stop descending.
func (n *Normalizer) LooksLikeJob(node gjson.Result) bool {
	if !node.IsObject() {
		return false
	}
	return firstString(node, n.table.Title) != "" && firstString(node, n.table.Description) != ""
}

// Normalize converts c into a JobRecord. The second return value is false
// when the candidate has neither a title nor a description.
func (n *Normalizer) Normalize(c model.RawCandidate) (model.JobRecord, bool) {
	doc := gjson.ParseBytes(c.Raw)
	if !doc.IsObject() {
		return model.JobRecord{}, false
	}
	return n.NormalizeResult(doc, c.Source)
}

// NormalizeResult is Normalize for an already parsed node.
func (n *Normalizer) NormalizeResult(doc gjson.Result, source string) (model.JobRecord, bool) {
	title := guard(n, "title", "", func() string { return CleanText(firstString(doc, n.table.Title)) })
	desc := guard(n, "description", "", func() string { return CleanText(firstString(doc, n.table.Description)) })
	if title == "" && desc == "" {
		return model.JobRecord{}, false
	}

	rec := model.JobRecord{
		Title:       title,
		Description: desc,
		Source:      source,
		Skills:      []string{},
	}
	rec.IDHint = guard(n, "id", "", func() string { return n.idHint(doc) })
	rec.URL = guard(n, "url", "", func() string { return n.resolveURL(doc) })
	rec.Budget = guard(n, "budget", nil, func() *model.Budget { return n.budget(doc) })
	rec.Skills = guard(n, "skills", []string{}, func() []string { return skills(doc, n.table.Skills) })
	rec.Client = guard(n, "client", model.Client{}, func() model.Client { return n.client(doc) })
	rec.PostedAt = guard(n, "posted_at", nil, func() *string { return optString(firstString(doc, n.table.PostedAt)) })
	rec.ProposalsCount = guard(n, "proposals", nil, func() *int { return firstInt(doc, n.table.Proposals) })
	rec.ExperienceLevel = guard(n, "experience", nil, func() *string { return experience(doc, n.table.ExperienceLevel) })
	return rec, true
}

// guard runs f and substitutes def if it panics.
func guard[T any](n *Normalizer, field string, def T, f func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			if n.logger != nil {
				n.logger.Debug("normalize field failed", "field", field, "panic", r)
			}
			out = def
		}
	}()
	return f()
}

// idHint prefers the ciphertext, the only id DOM cards carry, so a posting
// seen by both taps gets one identity key.
func (n *Normalizer) idHint(doc gjson.Result) string {
	if ct := firstString(doc, n.table.Ciphertext); ct != "" {
		return "~" + strings.TrimPrefix(ct, "~")
	}
	return firstString(doc, n.table.IDHint)
}

func (n *Normalizer) resolveURL(doc gjson.Result) string {
	for _, p := range n.table.URL {
		u := scalarString(doc.Get(p))
		switch {
		case strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "http://"):
			return u
		case strings.HasPrefix(u, "//"):
			return "https:" + u
		case strings.HasPrefix(u, "/") && len(u) > 1:
			return "https://" + n.siteHost + u
		}
	}
	if ct := firstString(doc, n.table.Ciphertext); ct != "" {
		return fmt.Sprintf("https://%s/jobs/~%s", n.siteHost, strings.TrimPrefix(ct, "~"))
	}
	return ""
}

func (n *Normalizer) budget(doc gjson.Result) *model.Budget {
	currency := firstString(doc, n.table.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	for _, p := range n.table.HourlyBudget {
		r := doc.Get(p)
		if !r.IsObject() {
			continue
		}
		lo, hi := number(r.Get("min")), number(r.Get("max"))
		if lo > 0 || hi > 0 {
			return &model.Budget{Kind: model.BudgetHourly, Min: lo, Max: hi, Currency: currency}
		}
	}
	lo, hi := number(doc.Get("hourlyBudgetMin")), number(doc.Get("hourlyBudgetMax"))
	if lo > 0 || hi > 0 {
		return &model.Budget{Kind: model.BudgetHourly, Min: lo, Max: hi, Currency: currency}
	}

	for _, p := range n.table.FixedBudget {
		r := doc.Get(p)
		var amt float64
		switch {
		case r.Type == gjson.Number:
			amt = r.Float()
		case r.IsObject():
			amt = number(r.Get("amount"))
		}
		if amt > 0 {
			return &model.Budget{Kind: model.BudgetFixed, Amount: amt, Currency: currency}
		}
	}

	for _, p := range n.table.BudgetText {
		r := doc.Get(p)
		if r.Type != gjson.String {
			continue
		}
		if b := ParseBudgetText(r.String()); b != nil {
			return b
		}
	}
	return nil
}

func (n *Normalizer) client(doc gjson.Result) model.Client {
	c := model.Client{
		Name:    firstString(doc, n.table.ClientName),
		Country: firstString(doc, n.table.ClientCountry),
	}
	if v, ok := firstNumber(doc, n.table.ClientRating); ok {
		c.Rating = &v
	}
	for _, p := range n.table.ClientTotalSpent {
		r := doc.Get(p)
		if r.IsObject() {
			r = r.Get("amount")
		}
		if !r.Exists() {
			continue
		}
		if v := number(r); v > 0 || r.Type == gjson.Number {
			c.TotalSpent = &v
			break
		}
	}
	return c
}

// scalarString returns the trimmed string form of a string or number result.
func scalarString(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(r.String())
	}
	return ""
}

func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if s := scalarString(doc.Get(p)); s != "" {
			return s
		}
	}
	return ""
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// number reads a numeric result, accepting numeric strings such as "$1,200"
// or "4.9". Anything else is zero.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		v, _ := parseAmount(r.String())
		return v
	}
	return 0
}

func firstNumber(doc gjson.Result, paths []string) (float64, bool) {
	for _, p := range paths {
		r := doc.Get(p)
		switch r.Type {
		case gjson.Number:
			return r.Float(), true
		case gjson.String:
			if v, ok := parseAmount(r.String()); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func firstInt(doc gjson.Result, paths []string) *int {
	for _, p := range paths {
		r := doc.Get(p)
		switch r.Type {
		case gjson.Number:
			v := int(r.Int())
			return &v
		case gjson.String:
			if v, ok := leadingInt(r.String()); ok {
				return &v
			}
		}
	}
	return nil
}

// leadingInt extracts the first run of digits in s, e.g. "10 to 15" -> 10.
func leadingInt(s string) (int, bool) {
	start := -1
	for i, ch := range s {
		if ch >= '0' && ch <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			v, err := strconv.Atoi(s[start:i])
			return v, err == nil
		}
	}
	if start < 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[start:])
	return v, err == nil
}

func skills(doc gjson.Result, paths []string) []string {
	for _, p := range paths {
		r := doc.Get(p)
		if !r.IsArray() {
			continue
		}
		out := []string{}
		for _, item := range r.Array() {
			var name string
			switch {
			case item.Type == gjson.String:
				name = strings.TrimSpace(item.String())
			case item.IsObject():
				name = firstString(item, []string{"name", "prefLabel", "prettyName", "label"})
			}
			if name != "" {
				out = append(out, name)
			}
		}
		return out
	}
	return []string{}
}

var tierNames = map[int64]string{
	1: "Entry level",
	2: "Intermediate",
	3: "Expert",
}

func experience(doc gjson.Result, paths []string) *string {
	for _, p := range paths {
		r := doc.Get(p)
		switch r.Type {
		case gjson.Number:
			if name, ok := tierNames[r.Int()]; ok {
				return &name
			}
		case gjson.String:
			if s := strings.TrimSpace(r.String()); s != "" {
				return &s
			}
		}
	}
	return nil
}

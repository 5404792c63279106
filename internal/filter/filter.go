package filter

import (
	"strings"

	"github.com/amishk599/jobtap/internal/model"
)

var _ model.JobFilter = (*PreferenceFilter)(nil)

// PreferenceFilter drops records before ranking: anything mentioning an
// excluded keyword, and anything whose stated experience level differs from
// the preferred one. Matching is case-insensitive. Records that do not state
// an experience level pass the level check.
type PreferenceFilter struct {
	exclude []string
	level   string
}

// NewPreferenceFilter builds a filter from ranking preferences. An empty or
// "all" experience level disables the level check.
func NewPreferenceFilter(prefs model.Preferences) *PreferenceFilter {
	var exclude []string
	for _, kw := range prefs.ExcludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			exclude = append(exclude, kw)
		}
	}
	level := strings.ToLower(strings.TrimSpace(prefs.ExperienceLevel))
	if level == "all" || level == "any" {
		level = ""
	}
	return &PreferenceFilter{exclude: exclude, level: level}
}

// Match returns true if the record survives both checks.
func (f *PreferenceFilter) Match(rec model.JobRecord) bool {
	if ContainsExcluded(rec, f.exclude) {
		return false
	}
	if f.level != "" && rec.ExperienceLevel != nil {
		if !strings.Contains(strings.ToLower(*rec.ExperienceLevel), f.level) {
			return false
		}
	}
	return true
}

// ContainsExcluded reports whether any term appears anywhere in the
// record's title, client name, description or skills. Terms must already be
// lower-cased.
func ContainsExcluded(rec model.JobRecord, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(rec.Title + " " + rec.Client.Name + " " + rec.Description + " " + strings.Join(rec.Skills, " "))
	for _, t := range terms {
		if strings.Contains(combined, t) {
			return true
		}
	}
	return false
}

// Apply returns the records f matches, in order. A nil filter keeps all.
func Apply(f model.JobFilter, records []model.JobRecord) []model.JobRecord {
	if f == nil {
		return records
	}
	out := make([]model.JobRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

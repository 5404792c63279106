package filter

import (
	"testing"

	"github.com/amishk599/jobtap/internal/model"
)

func strPtr(s string) *string { return &s }

func TestPreferenceFilter_Match(t *testing.T) {
	tests := []struct {
		name  string
		prefs model.Preferences
		rec   model.JobRecord
		want  bool
	}{
		{
			name: "no preferences match all",
			rec:  model.JobRecord{Title: "Anything"},
			want: true,
		},
		{
			name:  "excluded keyword in title",
			prefs: model.Preferences{ExcludeKeywords: []string{"Unpaid"}},
			rec:   model.JobRecord{Title: "UNPAID trial scraper"},
			want:  false,
		},
		{
			name:  "excluded keyword in description",
			prefs: model.Preferences{ExcludeKeywords: []string{"test task"}},
			rec:   model.JobRecord{Title: "Scraper", Description: "Start with a small test task"},
			want:  false,
		},
		{
			name:  "excluded keyword in skills",
			prefs: model.Preferences{ExcludeKeywords: []string{"wordpress"}},
			rec:   model.JobRecord{Title: "Site", Skills: []string{"WordPress"}},
			want:  false,
		},
		{
			name:  "blank exclude terms ignored",
			prefs: model.Preferences{ExcludeKeywords: []string{"", "  "}},
			rec:   model.JobRecord{Title: "Scraper"},
			want:  true,
		},
		{
			name:  "experience level matches",
			prefs: model.Preferences{ExperienceLevel: "expert"},
			rec:   model.JobRecord{Title: "Scraper", ExperienceLevel: strPtr("Expert")},
			want:  true,
		},
		{
			name:  "experience level differs",
			prefs: model.Preferences{ExperienceLevel: "expert"},
			rec:   model.JobRecord{Title: "Scraper", ExperienceLevel: strPtr("Entry level")},
			want:  false,
		},
		{
			name:  "unknown experience passes",
			prefs: model.Preferences{ExperienceLevel: "Expert"},
			rec:   model.JobRecord{Title: "Scraper"},
			want:  true,
		},
		{
			name:  "all disables level check",
			prefs: model.Preferences{ExperienceLevel: "all"},
			rec:   model.JobRecord{Title: "Scraper", ExperienceLevel: strPtr("Entry level")},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPreferenceFilter(tt.prefs)
			if got := f.Match(tt.rec); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	recs := []model.JobRecord{{Title: "a"}, {Title: "spam b"}, {Title: "c"}}
	f := NewPreferenceFilter(model.Preferences{ExcludeKeywords: []string{"spam"}})

	got := Apply(f, recs)
	if len(got) != 2 || got[0].Title != "a" || got[1].Title != "c" {
		t.Errorf("got %+v, want [a c]", got)
	}
	if got := Apply(nil, recs); len(got) != 3 {
		t.Errorf("nil filter kept %d, want 3", len(got))
	}
}

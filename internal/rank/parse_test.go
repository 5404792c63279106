package rank

import (
	"testing"
)

func TestParseRanked(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int
		scores []float64
	}{
		{"plain array", `[{"url":"a","score":7}]`, 1, []float64{7}},
		{"fenced", "```json\n[{\"url\":\"a\",\"score\":70}]\n```", 1, []float64{70}},
		{"prose around", "Here you go:\n[{\"url\":\"a\",\"score\":1},{\"url\":\"b\"}]\nThanks", 2, []float64{1, 0}},
		{"string score", `[{"url":"a","score":" 55.5 "}]`, 1, []float64{55.5}},
		{"bad score", `[{"url":"a","score":"high"}]`, 1, []float64{0}},
		{"negative clamped", `[{"url":"a","score":-3}]`, 1, []float64{0}},
		{"non-object entries skipped", `[1,"x",{"url":"a","score":5}]`, 1, []float64{5}},
		{"no array", `{"url":"a"}`, 0, nil},
		{"broken json", `[{"url":"a",}`, 0, nil},
		{"empty", ``, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRanked(tt.in)
			if len(got) != tt.want {
				t.Fatalf("got %d items, want %d", len(got), tt.want)
			}
			for i, s := range tt.scores {
				if got[i].Score != s {
					t.Errorf("item %d score = %v, want %v", i, got[i].Score, s)
				}
			}
		})
	}
}

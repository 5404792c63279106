package rank

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/amishk599/jobtap/internal/model"
)

// Sub-score caps. They sum to 100 so the heuristic shares the AI scale.
const (
	budgetWeight      = 25
	clientWeight      = 20
	competitionWeight = 15
	skillsWeight      = 20
	keywordsWeight    = 20
)

// expertiseKeywords boost jobs that need hard scraping and automation work.
var expertiseKeywords = []string{
	"cloudflare", "akamai", "imperva", "anti-bot", "captcha",
	"login required", "javascript rendering", "dynamic content", "spa",
	"react", "vue", "angular", "playwright", "puppeteer",
	"crawler", "scraper", "scraping", "bypass",
}

// HeuristicScore scores one record from its metadata alone. Each signal is
// capped independently and the total is rounded to an integer.
func HeuristicScore(rec model.JobRecord, prefs model.Preferences) (float64, string) {
	parts := []struct {
		name  string
		score float64
	}{
		{"budget", budgetScore(rec.Budget, prefs)},
		{"client", clientScore(rec.Client)},
		{"competition", competitionScore(rec.ProposalsCount)},
		{"skills", skillScore(rec.Skills, prefs.PreferredSkills)},
		{"keywords", keywordScore(rec, prefs.Keywords)},
	}

	var total float64
	var reasons []string
	for _, p := range parts {
		total += p.score
		if p.score > 0 {
			reasons = append(reasons, fmt.Sprintf("%s %g", p.name, math.Round(p.score*10)/10))
		}
	}
	total = math.Max(0, math.Min(100, math.Round(total)))

	if len(reasons) == 0 {
		return total, "heuristic: no strong signals"
	}
	return total, "heuristic: " + strings.Join(reasons, ", ")
}

func budgetScore(b *model.Budget, prefs model.Preferences) float64 {
	if b == nil {
		return 0
	}
	mag := b.Magnitude()
	var s float64
	if b.Kind == model.BudgetHourly {
		switch {
		case mag >= 50:
			s = budgetWeight
		case mag >= 30:
			s = budgetWeight * 0.7
		case mag >= 15:
			s = budgetWeight * 0.4
		}
	} else {
		switch {
		case mag > 1000:
			s = budgetWeight
		case mag > 500:
			s = budgetWeight * 0.7
		case mag > 100:
			s = budgetWeight * 0.4
		}
		// Preference bounds are in fixed-price terms.
		if (prefs.MinBudget > 0 && mag < prefs.MinBudget) || (prefs.MaxBudget > 0 && mag > prefs.MaxBudget) {
			s /= 2
		}
	}
	return s
}

func clientScore(c model.Client) float64 {
	if c.Rating != nil {
		switch r := *c.Rating; {
		case r >= 4.8:
			return clientWeight
		case r >= 4.5:
			return clientWeight * 0.7
		case r >= 4.0:
			return clientWeight * 0.4
		}
		return 0
	}
	if c.TotalSpent != nil && *c.TotalSpent >= 1000 {
		return clientWeight * 0.4
	}
	return 0
}

// competitionScore rewards scarcity: fewer proposals score higher.
func competitionScore(proposals *int) float64 {
	if proposals == nil {
		return 0
	}
	switch n := *proposals; {
	case n < 5:
		return competitionWeight
	case n < 15:
		return competitionWeight * 0.6
	case n < 30:
		return competitionWeight * 0.3
	}
	return 0
}

// skillScore is the share of the job's skills that overlap a preferred
// skill, by case-insensitive substring either way.
func skillScore(skills, preferred []string) float64 {
	if len(skills) == 0 || len(preferred) == 0 {
		return 0
	}
	prefs := make([]string, 0, len(preferred))
	for _, p := range preferred {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prefs = append(prefs, p)
		}
	}
	matched := 0
	for _, s := range skills {
		s = strings.ToLower(s)
		if slices.ContainsFunc(prefs, func(p string) bool {
			return strings.Contains(s, p) || strings.Contains(p, s)
		}) {
			matched++
		}
	}
	return skillsWeight * float64(matched) / float64(len(skills))
}

func keywordScore(rec model.JobRecord, keywords []string) float64 {
	text := strings.ToLower(rec.Title + " " + rec.Description)
	var s float64
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(text, k) {
			s += 5
		}
	}
	hits := 0
	for _, k := range expertiseKeywords {
		if strings.Contains(text, k) {
			hits++
		}
	}
	s += math.Min(15, float64(hits*3))
	return math.Min(keywordsWeight, s)
}

// heuristicRank scores every record and returns the best topN, highest
// first. Ties keep input order.
func heuristicRank(records []model.JobRecord, topN int, prefs model.Preferences) []model.RankedResult {
	out := make([]model.RankedResult, 0, len(records))
	for _, r := range records {
		score, reason := HeuristicScore(r, prefs)
		out = append(out, annotate(r, score, reason))
	}
	return sortAndCut(out, topN)
}

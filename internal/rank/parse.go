package rank

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// aiItem is one entry of the model's JSON array.
type aiItem struct {
	URL    string
	Title  string
	Score  float64
	Reason string
}

// parseRanked reads the model's reply. Code fences are stripped and the
// outermost [...] is parsed; anything unreadable yields nil.
func parseRanked(content string) []aiItem {
	cleaned := strings.ReplaceAll(content, "```json", "")
	cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "```", ""))

	first := strings.Index(cleaned, "[")
	last := strings.LastIndex(cleaned, "]")
	if first < 0 || last < first {
		return nil
	}
	raw := cleaned[first : last+1]
	if !gjson.Valid(raw) {
		return nil
	}

	var items []aiItem
	gjson.Parse(raw).ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		items = append(items, aiItem{
			URL:    strings.TrimSpace(v.Get("url").String()),
			Title:  strings.TrimSpace(v.Get("title").String()),
			Score:  parseScore(v.Get("score")),
			Reason: v.Get("reason").String(),
		})
		return true
	})
	return items
}

// parseScore accepts numbers and numeric strings, clamps to 0..100 and
// defaults to 0.
func parseScore(v gjson.Result) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		p, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		f = p
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(100, f))
}

package normalize

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobtap/internal/model"
)

// CleanText converts an HTML or HTML-encoded string to plain text. Entities
// are unescaped first so double-encoded payloads come out as markup, which
// is then flattened, and runs of whitespace collapse to single spaces.
func CleanText(content string) string {
	if content == "" {
		return ""
	}
	unescaped := html.UnescapeString(content)
	if strings.ContainsRune(unescaped, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped)); err == nil {
			unescaped = doc.Text()
		}
	}
	return strings.Join(strings.Fields(unescaped), " ")
}

var amountRegex = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*([kK])?`)

// parseAmount reads the first number in s, honouring thousands separators and
// a trailing k.
func parseAmount(s string) (float64, bool) {
	m := amountRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if m[2] != "" {
		v *= 1000
	}
	return v, true
}

// ParseBudgetText reads budgets as rendered on job cards: "$500",
// "Fixed-price: $1,200", "$20.00-$40.00 /hr", "Hourly: $15". Returns nil
// when no amount is present.
func ParseBudgetText(s string) *model.Budget {
	matches := amountRegex.FindAllStringSubmatch(s, 2)
	if len(matches) == 0 {
		return nil
	}
	vals := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			v *= 1000
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil
	}

	currency := defaultCurrency
	switch {
	case strings.Contains(s, "€"):
		currency = "EUR"
	case strings.Contains(s, "£"):
		currency = "GBP"
	}

	lower := strings.ToLower(s)
	hourly := strings.Contains(lower, "/hr") || strings.Contains(lower, "hourly") ||
		strings.Contains(lower, "per hour") || len(vals) == 2
	if hourly {
		b := &model.Budget{Kind: model.BudgetHourly, Min: vals[0], Currency: currency}
		if len(vals) == 2 {
			b.Max = vals[1]
		}
		return b
	}
	return &model.Budget{Kind: model.BudgetFixed, Amount: vals[0], Currency: currency}
}

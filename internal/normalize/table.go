package normalize

// Table lists, per canonical attribute, the gjson paths that may carry it.
// Paths are tried in order and the first non-empty value wins.
type Table struct {
	Title       []string
	Description []string
	URL         []string
	Ciphertext  []string
	IDHint      []string

	HourlyBudget []string // objects with min/max
	FixedBudget  []string // numbers or objects with amount
	BudgetText   []string // free text such as "$20.00-$40.00 /hr"
	Currency     []string

	Skills []string // arrays of strings or {name|prefLabel|prettyName}

	ClientName       []string
	ClientCountry    []string
	ClientRating     []string
	ClientTotalSpent []string

	PostedAt        []string
	Proposals       []string
	ExperienceLevel []string
}

// DefaultTable is the single synonym table used across both taps. It is the
// union of the field names seen in marketplace GraphQL search payloads, the
// legacy REST search results and the flat objects produced from DOM cards.
var DefaultTable = Table{
	Title:       []string{"title", "jobTitle", "position", "name"},
	Description: []string{"description", "publicDescription", "jobDescription", "snippet", "summary", "content"},
	URL:         []string{"url", "jobUrl", "jobPostingUrl", "upworkUrl", "link", "href"},
	Ciphertext:  []string{"ciphertext", "cipherText", "jobCiphertext"},
	IDHint:      []string{"id", "uid", "jobId"},

	HourlyBudget: []string{"hourlyBudget", "hourlyRate", "hourlyBudgetRange"},
	FixedBudget:  []string{"amount", "budget", "fixedPrice", "fixedPriceAmount"},
	BudgetText:   []string{"budget", "budgetText", "price"},
	Currency: []string{
		"currency", "amount.currencyCode", "amount.currency", "budget.currency",
		"budget.currencyCode", "hourlyBudget.currency", "hourlyBudget.currencyCode",
		"fixedPrice.currency",
	},

	Skills: []string{"skills", "ontologySkills", "requiredSkills", "attrs", "skillsList"},

	ClientName:       []string{"client.name", "client.companyName", "buyer.name", "buyer.company.name", "clientName"},
	ClientCountry:    []string{"client.location.country", "buyer.location.country", "client.country", "client.location", "clientCountry"},
	ClientRating:     []string{"client.totalFeedback", "client.rating", "buyer.stats.score", "buyer.stats.feedbackScore", "clientRating"},
	ClientTotalSpent: []string{"client.totalSpent", "buyer.stats.totalCharges", "buyer.stats.totalSpent", "clientSpent"},

	PostedAt:        []string{"publishedOn", "createdOn", "postedOn", "postedDate", "createTime", "posted"},
	Proposals:       []string{"proposalsCount", "totalApplicants", "applicants", "proposals", "proposalsTier"},
	ExperienceLevel: []string{"experienceLevel", "tier", "contractorTier", "tierText"},
}

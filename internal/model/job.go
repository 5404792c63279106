package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BudgetKind distinguishes fixed-price from hourly budgets.
type BudgetKind string

const (
	BudgetFixed  BudgetKind = "fixed"
	BudgetHourly BudgetKind = "hourly"
)

// Budget is either a fixed amount or an hourly range.
type Budget struct {
	Kind     BudgetKind `json:"kind"`
	Amount   float64    `json:"amount,omitempty"` // fixed only
	Min      float64    `json:"min,omitempty"`    // hourly only
	Max      float64    `json:"max,omitempty"`    // hourly only
	Currency string     `json:"currency"`
}

// Magnitude is the comparable size of a budget: the fixed amount, or the
// upper bound of an hourly range (lower bound when no upper bound exists).
func (b *Budget) Magnitude() float64 {
	if b == nil {
		return 0
	}
	if b.Kind == BudgetFixed {
		return b.Amount
	}
	if b.Max > 0 {
		return b.Max
	}
	return b.Min
}

// String renders the budget for prompts and notifications, e.g. "$20-40/hr"
// or "€500 fixed". A nil budget renders empty.
func (b *Budget) String() string {
	if b == nil {
		return ""
	}
	sym := currencySymbol(b.Currency)
	if b.Kind == BudgetHourly {
		switch {
		case b.Min > 0 && b.Max > 0 && b.Min != b.Max:
			return fmt.Sprintf("%s%g-%g/hr", sym, b.Min, b.Max)
		case b.Max > 0:
			return fmt.Sprintf("%s%g/hr", sym, b.Max)
		default:
			return fmt.Sprintf("%s%g/hr", sym, b.Min)
		}
	}
	return fmt.Sprintf("%s%g fixed", sym, b.Amount)
}

func currencySymbol(c string) string {
	switch strings.ToUpper(c) {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return strings.ToUpper(c) + " "
	}
}

// Client describes the buyer who posted a job.
type Client struct {
	Name       string   `json:"name"`
	Country    string   `json:"country"`
	Rating     *float64 `json:"rating"`
	TotalSpent *float64 `json:"totalSpent"`
}

// JobRecord is the canonical representation of a harvested job posting,
// whatever shape it had on the wire.
type JobRecord struct {
	IdentityKey     string    `json:"identityKey"`
	IDHint          string    `json:"idHint,omitempty"` // upstream stable id, if any
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	URL             string    `json:"url"`
	Budget          *Budget   `json:"budget"`
	Skills          []string  `json:"skills"`
	Client          Client    `json:"client"`
	PostedAt        *string   `json:"postedAt"` // opaque, not parsed
	ProposalsCount  *int      `json:"proposalsCount"`
	ExperienceLevel *string   `json:"experienceLevel"`
	CollectedAt     time.Time `json:"collectedAt"` // set once on first dedup insertion
	Source          string    `json:"source,omitempty"`
	Score           *float64  `json:"score"`
	ScoreReason     *string   `json:"scoreReason"`
}

// Clone returns a deep copy so callers can annotate without touching the
// stored record.
func (r JobRecord) Clone() JobRecord {
	out := r
	if r.Budget != nil {
		b := *r.Budget
		out.Budget = &b
	}
	if r.Skills != nil {
		out.Skills = append([]string(nil), r.Skills...)
	}
	if r.Client.Rating != nil {
		v := *r.Client.Rating
		out.Client.Rating = &v
	}
	if r.Client.TotalSpent != nil {
		v := *r.Client.TotalSpent
		out.Client.TotalSpent = &v
	}
	if r.PostedAt != nil {
		v := *r.PostedAt
		out.PostedAt = &v
	}
	if r.ProposalsCount != nil {
		v := *r.ProposalsCount
		out.ProposalsCount = &v
	}
	if r.ExperienceLevel != nil {
		v := *r.ExperienceLevel
		out.ExperienceLevel = &v
	}
	if r.Score != nil {
		v := *r.Score
		out.Score = &v
	}
	if r.ScoreReason != nil {
		v := *r.ScoreReason
		out.ScoreReason = &v
	}
	return out
}

// Source names for where a candidate was harvested.
const (
	SourceNetwork = "network"
	SourceDOM     = "dom"
)

// RawCandidate is a shape-unknown job-like payload. Raw holds a JSON object;
// DOM cards are converted to a flat JSON object before they get here.
type RawCandidate struct {
	Source string // SourceNetwork or SourceDOM
	Origin string // request URL or page URL the candidate came from
	Raw    []byte
}

// RankedResult pairs a record with the score the ranking stage gave it.
type RankedResult struct {
	Record JobRecord `json:"record"`
	Score  float64   `json:"score"`
	Reason string    `json:"reason"`
}

// Batch is one debounced group of newly collected records.
type Batch struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Records   []JobRecord `json:"records"`
	EmittedAt time.Time   `json:"emittedAt"`
}

// Preferences steer filtering and ranking.
type Preferences struct {
	PreferredSkills []string `json:"preferredSkills" yaml:"preferred_skills"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	ExcludeKeywords []string `json:"excludeKeywords" yaml:"exclude_keywords"`
	MinBudget       float64  `json:"minBudget" yaml:"min_budget"`
	MaxBudget       float64  `json:"maxBudget" yaml:"max_budget"`
	ExperienceLevel string   `json:"experienceLevel" yaml:"experience_level"`
}

// AddResult reports what a store did with a batch.
type AddResult struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

// JobStore holds collected records for the session.
type JobStore interface {
	AddBatch(ctx context.Context, records []JobRecord) (AddResult, error)
	GetAll(ctx context.Context) ([]JobRecord, error)
	Reset(ctx context.Context) error
}

// Notifier receives batch-completion events and ranking results.
type Notifier interface {
	NotifyBatch(ctx context.Context, batch Batch) error
	NotifyRanking(ctx context.Context, results []RankedResult) error
}

// JobFilter decides whether a record is worth ranking.
type JobFilter interface {
	Match(rec JobRecord) bool
}

// PageFetcher retrieves a page body from a watch target.
type PageFetcher interface {
	Fetch(ctx context.Context) (Page, error)
}

// Page is a fetched response body along with what is needed to route it to
// the right tap.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

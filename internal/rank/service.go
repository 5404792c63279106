package rank

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/amishk599/jobtap/internal/ai"
	"github.com/amishk599/jobtap/internal/filter"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/retry"
)

const (
	// DefaultTopN is used when a caller asks for zero or fewer results.
	DefaultTopN = 10
	// MaxSummaries bounds how many records one AI request describes.
	MaxSummaries = 50

	maxTitleRunes       = 140
	maxDescriptionRunes = 500
	maxSkills           = 10
	defaultMaxTokens    = 1400
)

// Options configures a Service.
type Options struct {
	Models      []string // ordered fallback chain, already allow-listed
	Temperature float64
	MaxTokens   int
	Policy      retry.Policy
	Sleep       retry.SleepFunc // nil uses retry.Sleep
}

// Ranking is the outcome of one Rank call.
type Ranking struct {
	Results   []model.RankedResult
	Model     string // model that produced Results; empty for the heuristic
	Heuristic bool
}

// Service ranks records with an LLM, retrying overloaded models, walking a
// model fallback chain, and degrading to HeuristicScore when the chain is
// exhausted or the reply is unusable.
type Service struct {
	provider    ai.LLMProvider
	models      []string
	temperature float64
	maxTokens   int
	retrier     *retry.Retrier
	logger      *slog.Logger
}

// NewService creates a Service. A nil provider ranks with the heuristic only.
func NewService(provider ai.LLMProvider, opts Options, logger *slog.Logger) *Service {
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Service{
		provider:    provider,
		models:      opts.Models,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		retrier:     retry.NewRetrier(policy, opts.Sleep, logger),
		logger:      logger,
	}
}

// Rank filters records by prefs, then returns at most topN annotated copies
// ordered by descending score. Only configuration errors (missing or
// rejected API key) are returned; every other AI failure falls back to the
// heuristic scorer.
func (s *Service) Rank(ctx context.Context, records []model.JobRecord, topN int, prefs model.Preferences) (Ranking, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	candidates := filter.Apply(filter.NewPreferenceFilter(prefs), records)
	if len(candidates) == 0 {
		return Ranking{Results: []model.RankedResult{}}, nil
	}
	if s.provider == nil || len(s.models) == 0 {
		return Ranking{Results: heuristicRank(candidates, topN, prefs), Heuristic: true}, nil
	}

	limited := candidates[:min(len(candidates), MaxSummaries)]
	system, user, err := s.prompt(limited, topN, prefs)
	if err != nil {
		return Ranking{}, err
	}

	text, used, err := s.complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, model.ErrMissingAPIKey) || errors.Is(err, model.ErrInvalidAPIKey) {
			return Ranking{}, err
		}
		s.logger.Warn("ai ranking failed, using heuristic", "error", err)
		return Ranking{Results: heuristicRank(candidates, topN, prefs), Heuristic: true}, nil
	}

	results := matchResults(parseRanked(text), limited)
	if len(results) == 0 {
		s.logger.Warn("ai ranking reply unusable, using heuristic", "model", used, "reply_bytes", len(text))
		return Ranking{Results: heuristicRank(candidates, topN, prefs), Heuristic: true}, nil
	}
	s.logger.Info("ranked with ai", "model", used, "candidates", len(limited), "results", min(len(results), topN))
	return Ranking{Results: sortAndCut(results, topN), Model: used}, nil
}

// complete walks the model chain. Each model gets a fresh retry budget;
// an exhausted budget moves to the next model, any other error aborts.
func (s *Service) complete(ctx context.Context, system, user string) (string, string, error) {
	var lastErr error
	for i, m := range s.models {
		var text string
		err := s.retrier.Do(ctx, "rank "+m, func(ctx context.Context) error {
			var err error
			text, err = s.provider.Complete(ctx, ai.CompletionRequest{
				Model:       m,
				System:      system,
				User:        user,
				Temperature: s.temperature,
				MaxTokens:   s.maxTokens,
			})
			return err
		})
		if err == nil {
			return text, m, nil
		}
		if !errors.Is(err, retry.ErrRetriesExhausted) {
			return "", m, err
		}
		lastErr = err
		if i+1 < len(s.models) {
			s.logger.Warn("model exhausted, falling back", "model", m, "next", s.models[i+1])
		}
	}
	return "", "", fmt.Errorf("%w: %w", model.ErrAllModelsExhausted, lastErr)
}

// summary is the trimmed view of a record sent to the model.
type summary struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Budget      string   `json:"budget"`
	URL         string   `json:"url"`
}

func (s *Service) prompt(records []model.JobRecord, topN int, prefs model.Preferences) (string, string, error) {
	sums := make([]summary, 0, len(records))
	for _, r := range records {
		skills := r.Skills
		if len(skills) > maxSkills {
			skills = skills[:maxSkills]
		}
		if skills == nil {
			skills = []string{}
		}
		sums = append(sums, summary{
			Title:       truncate(r.Title, maxTitleRunes),
			Description: truncate(r.Description, maxDescriptionRunes),
			Skills:      skills,
			Budget:      r.Budget.String(),
			URL:         r.URL,
		})
	}
	jobsJSON, err := json.MarshalIndent(sums, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal job summaries: %w", err)
	}
	return ai.RenderRankPrompt(ai.RankPromptData{
		TopN:            topN,
		PreferredSkills: prefs.PreferredSkills,
		Keywords:        prefs.Keywords,
		MinBudget:       prefs.MinBudget,
		MaxBudget:       prefs.MaxBudget,
		ExperienceLevel: prefs.ExperienceLevel,
		Count:           len(sums),
		JobsJSON:        string(jobsJSON),
	})
}

// matchResults ties each AI item back to a record, by URL first and then by
// title. Unmatched items and repeats are dropped.
func matchResults(items []aiItem, records []model.JobRecord) []model.RankedResult {
	byURL := make(map[string]int, len(records))
	byTitle := make(map[string]int, len(records))
	for i, r := range records {
		if r.URL != "" {
			if _, ok := byURL[r.URL]; !ok {
				byURL[r.URL] = i
			}
		}
		if t := strings.ToLower(strings.TrimSpace(r.Title)); t != "" {
			if _, ok := byTitle[t]; !ok {
				byTitle[t] = i
			}
		}
	}

	used := make(map[int]bool)
	var out []model.RankedResult
	for _, it := range items {
		idx, ok := byURL[it.URL]
		if !ok || it.URL == "" {
			idx, ok = byTitle[strings.ToLower(it.Title)]
		}
		if !ok || used[idx] {
			continue
		}
		used[idx] = true
		out = append(out, annotate(records[idx], it.Score, it.Reason))
	}
	return out
}

// annotate returns a scored copy; the stored original is never touched.
func annotate(rec model.JobRecord, score float64, reason string) model.RankedResult {
	c := rec.Clone()
	c.Score = &score
	c.ScoreReason = &reason
	return model.RankedResult{Record: c, Score: score, Reason: reason}
}

func sortAndCut(results []model.RankedResult, topN int) []model.RankedResult {
	slices.SortStableFunc(results, func(a, b model.RankedResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/rank_system.md
var rankSystemPromptRaw string

//go:embed prompts/rank_user.md
var rankUserPromptRaw string

var funcs = template.FuncMap{"join": strings.Join}

// RankSystemTemplate and RankUserTemplate are parsed once at package init.
var (
	RankSystemTemplate = template.Must(template.New("rank_system").Funcs(funcs).Parse(rankSystemPromptRaw))
	RankUserTemplate   = template.Must(template.New("rank_user").Parse(rankUserPromptRaw))
)

// RankPromptData fills both ranking templates.
type RankPromptData struct {
	TopN            int
	PreferredSkills []string
	Keywords        []string
	MinBudget       float64
	MaxBudget       float64
	ExperienceLevel string
	Count           int
	JobsJSON        string
}

// RenderRankPrompt returns the system and user messages for one ranking call.
func RenderRankPrompt(data RankPromptData) (system, user string, err error) {
	var sys, usr bytes.Buffer
	if err := RankSystemTemplate.Execute(&sys, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := RankUserTemplate.Execute(&usr, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return strings.TrimSpace(sys.String()), strings.TrimSpace(usr.String()), nil
}

package ai

import (
	"fmt"
	"slices"
	"strings"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Catalog is the allow-list of models for one provider. Models is ordered
// and doubles as the default fallback chain.
type Catalog struct {
	Provider string
	Default  string
	Models   []string
	Aliases  map[string]string
}

var catalogs = map[string]Catalog{
	ProviderGemini: {
		Provider: ProviderGemini,
		Default:  "gemini-2.5-flash",
		Models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
		},
		Aliases: map[string]string{
			"gemini-pro":              "gemini-2.5-flash",
			"gemini-1.5-pro":          "gemini-2.5-flash",
			"gemini-1.5-flash":        "gemini-2.5-flash",
			"gemini-1.5-flash-latest": "gemini-2.5-flash",
			"gemini-1.5-flash-8b":     "gemini-2.5-flash-lite",
			"gemini-2.0-flash-exp":    "gemini-2.0-flash",
			"gpt-4":                   "gemini-2.5-flash",
			"gpt-3.5-turbo":           "gemini-2.5-flash",
		},
	},
	ProviderOpenAI: {
		Provider: ProviderOpenAI,
		Default:  "gpt-4o-mini",
		Models: []string{
			"gpt-4o-mini",
			"gpt-4.1-mini",
			"gpt-4o",
		},
		Aliases: map[string]string{
			"gpt-4":         "gpt-4o",
			"gpt-3.5-turbo": "gpt-4o-mini",
		},
	},
}

// CatalogFor returns the model catalog for a provider name.
func CatalogFor(provider string) (Catalog, error) {
	c, ok := catalogs[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return Catalog{}, fmt.Errorf("unknown ai provider %q", provider)
	}
	return c, nil
}

// Allowed reports whether name is in the allow-list as written.
func (c Catalog) Allowed(name string) bool {
	return slices.Contains(c.Models, name)
}

// Coerce maps a configured model name onto the allow-list. Aliases resolve
// to their replacement; anything else unknown becomes the default.
func (c Catalog) Coerce(name string) string {
	name = strings.TrimSpace(name)
	if c.Allowed(name) {
		return name
	}
	if to, ok := c.Aliases[strings.ToLower(name)]; ok {
		return to
	}
	return c.Default
}

// Chain returns the ordered model list for one ranking request: the coerced
// primary first, then the coerced fallbacks, without duplicates. An empty
// fallbacks list uses the catalog order.
func (c Catalog) Chain(primary string, fallbacks []string) []string {
	if len(fallbacks) == 0 {
		fallbacks = c.Models
	}
	chain := []string{c.Coerce(primary)}
	for _, f := range fallbacks {
		m := c.Coerce(f)
		if !slices.Contains(chain, m) {
			chain = append(chain, m)
		}
	}
	return chain
}

package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/amishk599/jobtap/internal/ai"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List allowed AI models",
	Long:  "Lists the allowed models, default model and legacy aliases for a provider (gemini or openai).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	providers := []string{ai.ProviderGemini, ai.ProviderOpenAI}
	if len(args) == 1 {
		providers = args
	}

	for _, p := range providers {
		c, err := ai.CatalogFor(p)
		if err != nil {
			return err
		}
		fmt.Printf("%s (default %s)\n", c.Provider, c.Default)
		for _, m := range c.Models {
			fmt.Printf("  %s\n", m)
		}
		if len(c.Aliases) > 0 {
			fmt.Println("  aliases:")
			for _, alias := range slices.Sorted(maps.Keys(c.Aliases)) {
				fmt.Printf("    %s -> %s\n", alias, c.Aliases[alias])
			}
		}
	}
	return nil
}

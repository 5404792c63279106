package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/rank"
	"github.com/spf13/cobra"
)

var rankTopN int

var rankCmd = &cobra.Command{
	Use:   "rank [records.json]",
	Short: "Rank collected records",
	Long: "Ranks a JSON array of job records read from a file, stdin (\"-\"), or the configured store " +
		"when no file is given, and sends the result to the configured notifier.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRank,
}

func init() {
	rankCmd.Flags().IntVar(&rankTopN, "top", 0, "number of results (default: ranking.top_n)")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var records []model.JobRecord
	if len(args) == 1 {
		records, err = readRecords(args[0])
		if err != nil {
			return err
		}
	} else {
		jobStore, closeStore, err := setupStore(cfg, logger)
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		records, err = jobStore.GetAll(ctx)
		closeStore()
		if err != nil {
			return fmt.Errorf("read store: %w", err)
		}
	}
	if len(records) == 0 {
		fmt.Println("No records to rank.")
		return nil
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n, closeNotifier, err := setupNotifier(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	ranker, err := setupRanker(ctx, cfg, &http.Client{}, logger)
	if err != nil {
		logger.Error("failed to set up ranker", "error", err)
		os.Exit(1)
	}

	topN := cfg.Ranking.TopN
	if rankTopN > 0 {
		topN = rankTopN
	}
	return rankAndReport(ctx, ranker, n, records, topN, cfg.Ranking.Preferences)
}

func readRecords(path string) ([]model.JobRecord, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		r = f
	}
	var records []model.JobRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// rankAndReport ranks records, prints the table and forwards the results
// to the notifier.
func rankAndReport(ctx context.Context, ranker *rank.Service, n model.Notifier, records []model.JobRecord, topN int, prefs model.Preferences) error {
	ranking, err := ranker.Rank(ctx, records, topN, prefs)
	if err != nil {
		return fmt.Errorf("rank: %w", err)
	}

	source := ranking.Model
	if ranking.Heuristic {
		source = "heuristic"
	}
	fmt.Printf("\nTop %d of %d jobs (%s)\n", len(ranking.Results), len(records), source)
	for i, r := range ranking.Results {
		fmt.Printf("%3d. [%3.0f] %s\n", i+1, r.Score, r.Record.Title)
		if b := r.Record.Budget.String(); b != "" {
			fmt.Printf("       budget: %s\n", b)
		}
		if r.Reason != "" {
			fmt.Printf("       %s\n", r.Reason)
		}
		fmt.Printf("       %s\n", orNone(r.Record.URL))
	}

	if len(ranking.Results) == 0 {
		return nil
	}
	if err := n.NotifyRanking(ctx, ranking.Results); err != nil {
		return fmt.Errorf("notify ranking: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amishk599/jobtap/internal/store"
	"github.com/amishk599/jobtap/internal/tap"
	"github.com/spf13/cobra"
)

var (
	ingestHAR     []string
	ingestHTML    []string
	ingestPageURL string
	ingestRank    bool
	ingestJSON    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay recorded traffic or saved pages through the taps",
	Long: "Replays HAR archives through the network tap and saved HTML pages through the DOM tap, " +
		"then prints the collected records. With --rank, the collected records are ranked as well.",
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestHAR, "har", nil, "HAR file to replay (repeatable)")
	ingestCmd.Flags().StringArrayVar(&ingestHTML, "html", nil, "saved HTML page to scan (repeatable)")
	ingestCmd.Flags().StringVar(&ingestPageURL, "page-url", "", "URL the saved pages were captured from (default: file:// path)")
	ingestCmd.Flags().BoolVar(&ingestRank, "rank", false, "rank the collected records")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print records as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	if len(ingestHAR) == 0 && len(ingestHTML) == 0 {
		return fmt.Errorf("nothing to ingest: pass --har and/or --html")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n, closeNotifier, err := setupNotifier(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	session := newSession(cfg, store.NewNopStore(), n, logger)

	for _, path := range ingestHAR {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open har: %w", err)
		}
		stats, err := tap.ReplayHAR(f, session.Inspector(), session.DOM())
		f.Close()
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		logger.Info("har replayed",
			"file", path,
			"entries", stats.Entries,
			"inspected", stats.Inspected,
			"pages", stats.Pages,
			"added", stats.Added,
		)
	}

	for _, path := range ingestHTML {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		pageURL := ingestPageURL
		if pageURL == "" {
			abs, _ := filepath.Abs(path)
			pageURL = "file://" + abs
		}
		added := session.DOM().ScanHTML(string(data), pageURL)
		logger.Info("page scanned", "file", path, "added", added)
	}

	session.Close()
	records := session.Records()

	if ingestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return err
		}
	} else {
		fmt.Printf("\nCollected %d jobs\n", len(records))
		for i, r := range records {
			fmt.Printf("%3d. %s\n     %s\n", i+1, r.Title, orNone(r.URL))
		}
	}

	if !ingestRank {
		return nil
	}
	ranker, err := setupRanker(ctx, cfg, &http.Client{}, logger)
	if err != nil {
		logger.Error("failed to set up ranker", "error", err)
		os.Exit(1)
	}
	return rankAndReport(ctx, ranker, n, records, cfg.Ranking.TopN, cfg.Ranking.Preferences)
}

func orNone(s string) string {
	if s == "" {
		return "(no url)"
	}
	return s
}

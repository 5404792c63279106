package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amishk599/jobtap/internal/config"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/ratelimit"
	"github.com/amishk599/jobtap/internal/retry"
	"github.com/amishk599/jobtap/internal/scheduler"
	"github.com/amishk599/jobtap/internal/source"
	"github.com/spf13/cobra"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch watch targets on a schedule",
	Long: "Fetches the configured watch targets on the watch.schedule cron spec and feeds JSON " +
		"responses to the network tap and HTML pages to the DOM tap; blocks until SIGINT/SIGTERM.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Watch.Targets) == 0 {
		logger.Error("no watch targets configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeStore, err := setupStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n, closeNotifier, err := setupNotifier(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	session := newSession(cfg, jobStore, n, logger)
	defer session.Close()

	targets := buildTargets(cfg, httpClient, logger)
	sched := scheduler.New(cfg.Watch.Schedule, targets, session.Inspector(), session.DOM(), logger)

	if watchOnce {
		stats := sched.RunOnce(ctx)
		session.Flush()
		fmt.Printf("Fetched %d, failed %d, new jobs %d\n", stats.Fetched, stats.Failed, stats.Added)
		return nil
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// buildTargets wraps each target's fetcher with retry and a per-host rate
// limit shared by every target on the same host.
func buildTargets(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []scheduler.Target {
	limiter := ratelimit.NewHostRateLimiter(cfg.Watch.MinDelay)
	logger.Info("rate limiter configured", "min_delay", cfg.Watch.MinDelay.String())

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Multiplier: 2, MaxDelay: time.Minute, MaxJitter: time.Second}

	targets := make([]scheduler.Target, 0, len(cfg.Watch.Targets))
	for _, t := range cfg.Watch.Targets {
		var fetcher model.PageFetcher = source.NewHTTPFetcher(t.URL, httpClient, 0, nil)
		fetcher = ratelimit.NewRateLimitedFetcher(fetcher, limiter, ratelimit.HostOf(t.URL))
		fetcher = retry.NewRetryFetcher(fetcher, policy, logger)
		targets = append(targets, scheduler.Target{Name: t.Name, URL: t.URL, Kind: t.Kind, Fetcher: fetcher})
		logger.Info("registered watch target", "name", t.Name, "url", t.URL, "kind", t.Kind)
	}
	return targets
}

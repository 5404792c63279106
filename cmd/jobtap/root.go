package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/amishk599/jobtap/internal/ai"
	"github.com/amishk599/jobtap/internal/config"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/notifier"
	"github.com/amishk599/jobtap/internal/pipeline"
	"github.com/amishk599/jobtap/internal/rank"
	"github.com/amishk599/jobtap/internal/retry"
	"github.com/amishk599/jobtap/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobtap",
	Short: "Harvest, deduplicate and rank marketplace job postings",
	Long: "jobtap taps captured marketplace traffic and page snapshots for job postings, " +
		"normalizes and deduplicates them, and ranks them with an AI model or a heuristic fallback.",
	// With no subcommand, run the capture server.
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBTAP_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig loads .env (if present) so ${VAR} references expand, then
// resolves the config path and parses it.
// Priority: explicit path arg > JOBTAP_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load(config.ResolvePath(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// setupStore opens the configured session store. The returned func closes it.
func setupStore(cfg *config.Config, logger *slog.Logger) (model.JobStore, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "dsn", cfg.Store.DSN)
		return s, func() { s.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

// setupNotifier builds the configured notifier. The returned func releases
// any connection it holds.
func setupNotifier(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (model.Notifier, func(), error) {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger), func() {}, nil
	case "redis":
		rdb, err := notifier.NewRedisClient(ctx, cfg.Notification.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rn := notifier.NewRedisNotifier(rdb, cfg.Notification.Channel, logger)
		logger.Info("using redis notifier", "channel", cfg.Notification.Channel)
		return notifier.Multi{notifier.NewLogNotifier(logger), rn}, func() { rdb.Close() }, nil
	default:
		return notifier.NewLogNotifier(logger), func() {}, nil
	}
}

// setupRanker builds the ranking service for the configured provider. A
// provider without an API key still yields a service; ranking requests
// then fail with model.ErrMissingAPIKey.
func setupRanker(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (*rank.Service, error) {
	policy := retry.Policy{
		MaxAttempts: cfg.AI.Retry.MaxAttempts,
		BaseDelay:   cfg.AI.Retry.BaseDelay,
		Multiplier:  2,
		MaxDelay:    cfg.AI.Retry.MaxDelay,
		MaxJitter:   cfg.AI.Retry.MaxJitter,
	}

	if cfg.AI.Provider == ai.ProviderNone {
		logger.Info("ai ranking disabled, using heuristic scorer")
		return rank.NewService(nil, rank.Options{Policy: policy}, logger), nil
	}

	catalog, err := ai.CatalogFor(cfg.AI.Provider)
	if err != nil {
		return nil, err
	}
	chain := catalog.Chain(cfg.AI.Model, cfg.AI.FallbackModels)
	if cfg.AI.Model != "" && chain[0] != cfg.AI.Model {
		logger.Warn("model not allowed, coerced", "requested", cfg.AI.Model, "using", chain[0])
	}

	var provider ai.LLMProvider
	switch cfg.AI.Provider {
	case ai.ProviderGemini:
		provider, err = ai.NewGeminiProvider(ctx, ai.GeminiOptions{
			APIKey:     cfg.AI.APIKey,
			BaseURL:    cfg.AI.BaseURL,
			Timeout:    cfg.AI.Timeout,
			HTTPClient: httpClient,
		})
	case ai.ProviderOpenAI:
		provider, err = ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Timeout, httpClient)
	}
	if errors.Is(err, model.ErrMissingAPIKey) {
		logger.Warn("ai api key not configured", "provider", cfg.AI.Provider)
		provider = ai.MissingKeyProvider{Provider: cfg.AI.Provider}
	} else if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.AI.Provider, err)
	}

	logger.Info("ai ranking configured", "provider", cfg.AI.Provider, "models", chain)
	return rank.NewService(provider, rank.Options{
		Models:      chain,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Policy:      policy,
	}, logger), nil
}

func newSession(cfg *config.Config, jobStore model.JobStore, n model.Notifier, logger *slog.Logger) *pipeline.Session {
	s := pipeline.NewSession(pipeline.Options{
		SiteHost:        cfg.Collector.SiteHost,
		MaxDepth:        cfg.Collector.MaxDepth,
		Debounce:        cfg.Collector.Debounce,
		EndpointMarkers: cfg.Collector.EndpointMarkers,
		MaxBodyBytes:    cfg.Collector.MaxBodyBytes,
		RescanDelay:     cfg.DOM.RescanDelay,
	}, jobStore, n, logger)
	logger.Info("session started", "session_id", s.ID)
	return s
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amishk599/jobtap/internal/httpapi"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture API",
	Long:  "Start the HTTP capture API for a single collection session; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
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

	ranker, err := setupRanker(ctx, cfg, &http.Client{}, logger)
	if err != nil {
		logger.Error("failed to set up ranker", "error", err)
		os.Exit(1)
	}

	session := newSession(cfg, jobStore, n, logger)
	defer session.Close()

	api := httpapi.New(session, jobStore, ranker, n, httpapi.Options{
		TopN:        cfg.Ranking.TopN,
		Preferences: cfg.Ranking.Preferences,
	}, logger)
	go api.Observe(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("capture api listening", "addr", cfg.Server.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	st := session.Stats()
	logger.Info("goodbye", "records", st.Records, "batches", st.Batches)
	return nil
}

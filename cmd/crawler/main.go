package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/crypto-crawler/internal/api"
	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/database"
	"github.com/rickgao/crypto-crawler/internal/metrics"
	"github.com/rickgao/crypto-crawler/internal/pipeline"
	"github.com/rickgao/crypto-crawler/internal/poller"
	"github.com/rickgao/crypto-crawler/internal/publisher"
	"github.com/rickgao/crypto-crawler/internal/snapshot"
	"github.com/rickgao/crypto-crawler/internal/version"
	"github.com/rickgao/crypto-crawler/internal/writer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdout)
	cancel()
	os.Exit(code)
}

// run starts the crawler and blocks until ctx is cancelled. It returns the
// process exit code: 0 after a clean shutdown, 1 when startup fails and 2
// for bad flags.
func run(ctx context.Context, args []string, logOut io.Writer) int {
	flags := flag.NewFlagSet("crawler", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML config file (environment only when empty)")
	envFile := flags.String("env-file", ".env", "dotenv file to load before reading configuration")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Set up structured logging; the level is raised or lowered once the
	// config is loaded.
	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting crawler",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load env file", "path", *envFile, "error", err)
		return 1
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	level.Set(cfg.Log.SlogLevel())

	logger.Info("configuration loaded",
		"api_url", cfg.API.URL,
		"vs_currency", cfg.API.VSCurrency,
		"per_page", cfg.API.PerPage,
		"interval", cfg.Poller.Interval,
		"publisher", cfg.Publisher.Kind,
		"snapshot", cfg.Snapshot.Kind,
	)

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return startupFailed(ctx, logger, "failed to connect to database", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return startupFailed(ctx, logger, "failed to ensure schema", err)
	}
	logger.Info("database connected")

	pub, err := publisher.New(cfg.Publisher, logger)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		return 1
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("failed to close publisher", "error", err)
		}
	}()

	store, err := snapshot.New(ctx, cfg.Snapshot)
	if err != nil {
		return startupFailed(ctx, logger, "failed to create snapshot store", err)
	}
	snapshots := snapshot.NewCached(store)
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Warn("failed to close snapshot store", "error", err)
		}
	}()

	apiOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
	}
	if cfg.API.MaxRetries > 0 {
		apiOpts = append(apiOpts, api.WithRetries(cfg.API.MaxRetries, time.Second))
	}
	apiClient := api.NewClient(cfg.API.URL, cfg.API.APIKey, apiOpts...)

	reg := metrics.NewRegistry()
	crawlerMetrics := metrics.NewCrawler(reg)

	historyWriter := writer.NewHistoryWriter(pool, logger)
	pl := pipeline.New(pipeline.Config{
		Fetcher: apiClient,
		Options: api.CoinMarketsOptions{
			VSCurrency: cfg.API.VSCurrency,
			PerPage:    cfg.API.PerPage,
		},
		Persister: historyWriter,
		Publisher: pub,
		Snapshots: snapshots,
		Metrics:   crawlerMetrics,
		Logger:    logger,
	})

	p := poller.New(poller.Config{
		Interval:     cfg.Poller.Interval,
		CycleTimeout: cfg.Poller.CycleTimeout,
	}, pl, logger)

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHandler(handlerDeps{
			pinger:    pool,
			cycles:    p.Cycles,
			writer:    historyWriter,
			snapshots: snapshot.NewHandler(snapshots, cfg.Snapshot.MaxAge, logger),
			metrics:   metrics.Handler(reg),
			metricsAt: cfg.Metrics.Path,
			latest: func(ctx context.Context, symbol string) (any, error) {
				return latestCoin(ctx, pool, symbol)
			},
			logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := p.Start(ctx); err != nil {
		return startupFailed(ctx, logger, "failed to start poller", err)
	}

	logger.Info("crawler running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Poller.CycleTimeout+5*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		logger.Warn("poller did not stop in time", "error", err)
	}

	// Graceful shutdown of http server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	stats := historyWriter.Stats()
	logger.Info("crawler stopped",
		"cycles", p.Cycles(),
		"rows_inserted", stats.Inserts,
		"batches", stats.Batches,
	)
	return 0
}

// startupFailed maps a startup error to an exit code. An error caused by a
// shutdown signal arriving mid-startup is a clean exit.
func startupFailed(ctx context.Context, logger *slog.Logger, msg string, err error) int {
	if ctx.Err() != nil {
		logger.Info("shutdown requested during startup", "step", msg, "error", err)
		return 0
	}
	logger.Error(msg, "error", err)
	return 1
}

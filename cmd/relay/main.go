package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/metrics"
	"github.com/rickgao/crypto-crawler/internal/relay"
	"github.com/rickgao/crypto-crawler/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file (environment only when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading configuration")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load env file", "path", *envFile, "error", err)
		return 1
	}

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	level.Set(cfg.Log.SlogLevel())

	logger.Info("configuration loaded",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topic,
		"group_id", cfg.Kafka.GroupID,
		"destination", cfg.Relay.Destination,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelay(reg)

	hub := relay.NewHub([]string{cfg.Relay.Destination}, cfg.Relay.History, relayMetrics, logger)
	wsServer := relay.NewServer(hub, cfg.Relay, logger)

	source := relay.NewKafkaSource(cfg.Kafka)
	bridge := relay.NewBridge(source, hub, cfg.Relay.Destination, relayMetrics, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.Relay.Path, wsServer)
	mux.Handle("GET /health", relay.HealthHandler(hub))
	mux.Handle("GET /metrics", metrics.Handler(reg))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting relay server", "port", cfg.Relay.Port, "path", cfg.Relay.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay server error", "error", err)
			cancel()
		}
	}()

	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- bridge.Run(ctx)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-bridgeDone:
		if err != nil {
			logger.Error("bridge stopped", "error", err)
			exitCode = 1
		}
		cancel()
	}

	logger.Info("shutting down...")

	if err := source.Close(); err != nil {
		logger.Warn("failed to close kafka reader", "error", err)
	}
	wsServer.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	logger.Info("relay stopped")
	return exitCode
}

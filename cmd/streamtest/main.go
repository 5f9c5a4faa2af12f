// streamtest connects to the relay and streams coin events to the console.
// Usage: go run ./cmd/streamtest --url ws://localhost:9091/ws
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/relay"
)

func main() {
	url := flag.String("url", fmt.Sprintf("ws://localhost:%d%s", config.DefaultRelayPort, config.DefaultRelayPath), "relay WebSocket URL")
	dest := flag.String("destination", config.DefaultRelayDestination, "destination to subscribe to")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := relay.NewClient(relay.ClientConfig{URL: *url}, logger)

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	err := client.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to relay", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Subscribe(*dest, "streamtest"); err != nil {
		logger.Error("failed to subscribe", "destination", *dest, "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop", "destination", *dest)

	var received, replayed int
	stats := time.NewTicker(10 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete", "received", received, "replayed", replayed)
			return

		case err := <-client.Errors():
			logger.Error("relay connection lost", "error", err)
			os.Exit(1)

		case <-stats.C:
			logger.Info("stats", "received", received, "replayed", replayed)

		case f := <-client.Frames():
			switch f.Command {
			case relay.CmdMessage:
				if f.Replay {
					replayed++
				} else {
					received++
				}
				printEvent(f, *verbose)
			case relay.CmdError:
				logger.Warn("relay error", "message", f.Message)
			default:
				logger.Debug("relay frame", "command", f.Command, "receipt", f.Receipt)
			}
		}
	}
}

func printEvent(f relay.Frame, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(f, "", "  ")
		fmt.Printf("[EVENT] %s\n", data)
		return
	}

	ev, err := relay.ValidateEvent(f.Body)
	if err != nil {
		fmt.Printf("[EVENT INVALID] %s\n", f.Body)
		return
	}

	tag := "[EVENT]"
	if f.Replay {
		tag = "[EVENT REPLAY]"
	}
	fmt.Printf("%s id=%d price=%.6g rank=%.0f volume=%.6g change_24h=%.2f%%\n",
		tag, ev.CryptocurrencyID, ev.AvgPrice, ev.AvgMarketCapRank, ev.AvgTotalVolume, ev.AvgPriceChangePct)
}

// streamtest connects to the push channel and prints every decoded envelope.
// Usage: go run ./cmd/streamtest --config config.example.yaml [--verbose]
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

	"github.com/rickgao/subscription-dashboard/internal/config"
	"github.com/rickgao/subscription-dashboard/internal/connection"
	"github.com/rickgao/subscription-dashboard/internal/eventloop"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	url := flag.String("url", "", "push URL, overrides the config")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Push.URL = *url
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loop := eventloop.New(logger)
	if err := loop.Start(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to start event loop", "error", err)
		os.Exit(1)
	}

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Client.URL = cfg.Push.URL
	mgrCfg.Client.PingInterval = cfg.Push.PingInterval
	mgrCfg.Client.PingTimeout = cfg.Push.PingTimeout
	mgrCfg.Client.ReadLimit = cfg.Push.ReadLimit
	mgrCfg.ReconnectDelay = cfg.Push.ReconnectDelay
	mgrCfg.BackoffMultiplier = cfg.Push.BackoffMultiplier
	mgrCfg.ReconnectMaxDelay = cfg.Push.ReconnectMaxDelay

	mgr := connection.NewManager(mgrCfg, loop, connection.HandlerFuncs{
		OnState: func(s connection.State) {
			fmt.Printf("[STATE] %s\n", s)
		},
		OnRealtime: func(data model.RealtimeData, receivedAt time.Time) {
			printEnvelope(data, receivedAt, *verbose)
		},
	}, logger)

	logger.Info("connecting", "url", cfg.Push.URL)
	loop.Post(mgr.Start)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := mgr.Stats()
				logger.Info("stats",
					"state", s.State.String(),
					"attempts", s.Attempts,
					"reconnects", s.Reconnects,
					"messages", s.Messages,
					"protocol_errors", s.ProtocolErrors,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := loop.Call(shutdownCtx, mgr.Stop); err != nil {
		logger.Warn("stop connection", "error", err)
	}
	if err := loop.Stop(shutdownCtx); err != nil {
		logger.Warn("stop event loop", "error", err)
	}
	logger.Info("shutdown complete")
}

func printEnvelope(data model.RealtimeData, receivedAt time.Time, verbose bool) {
	if verbose {
		out, _ := json.MarshalIndent(data, "", "  ")
		fmt.Printf("[ANALYTICS] %s\n", out)
		return
	}
	a := data.Analytics
	fmt.Printf("[ANALYTICS] ts=%s received=%s total=%d active=%d trial=%d cancelled=%d expired=%d mrr=%.2f recent=%d\n",
		data.Timestamp, receivedAt.Format(time.TimeOnly),
		a.TotalSubscriptions, a.ActiveSubscriptions, a.TrialSubscriptions,
		a.CancelledSubscriptions, a.Expired(), a.MonthlyRevenue, len(data.RecentSubscriptions))
}

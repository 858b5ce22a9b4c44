// dashboard runs the subscription dashboard headless: the view is rendered as
// log lines and commands are read from stdin.
// Usage: go run ./cmd/dashboard --config config.example.yaml
//
// Type "help" for the command list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/subscription-dashboard/internal/api"
	"github.com/rickgao/subscription-dashboard/internal/archive"
	"github.com/rickgao/subscription-dashboard/internal/config"
	"github.com/rickgao/subscription-dashboard/internal/connection"
	"github.com/rickgao/subscription-dashboard/internal/dashboard"
	"github.com/rickgao/subscription-dashboard/internal/database"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	flag.Parse()

	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.Log.SlogLevel()
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting dashboard", version.Attr(), "config", *configPath)
	logger.Info("configuration loaded",
		"api_url", cfg.API.BaseURL,
		"push_url", cfg.Push.URL,
		"page_size", cfg.Listing.PageSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dashboard exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("dashboard stopped")
}

func run(ctx context.Context, cfg *config.DashboardConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	g, gctx := errgroup.WithContext(ctx)

	opts := []dashboard.Option{dashboard.WithMetrics(mt)}

	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		writer := archive.NewWriter(archiveConfig(cfg.Archive), pool, logger, mt)
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		opts = append(opts, dashboard.WithSnapshotSink(writer))
		g.Go(func() error { return writer.Run(gctx) })
	}

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           metricsMux(cfg.Metrics.Path, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	client := api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	)

	lines := readLines(os.Stdin)
	sh := newShell(lines, os.Stdout, logger)

	ctl := dashboard.New(controllerConfig(cfg), client,
		dashboard.NewLogRenderer(logger), sh, logger, opts...)
	sh.ctl = ctl

	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error {
		err := sh.run(gctx)
		cancel()
		return err
	})

	logger.Info("dashboard running - type help for commands, Ctrl+C to stop")
	return g.Wait()
}

// controllerConfig maps file settings onto the controller.
func controllerConfig(cfg *config.DashboardConfig) dashboard.Config {
	push := connection.DefaultManagerConfig()
	push.Client.URL = cfg.Push.URL
	push.Client.PingInterval = cfg.Push.PingInterval
	push.Client.PingTimeout = cfg.Push.PingTimeout
	push.Client.HandshakeTimeout = cfg.Push.HandshakeTimeout
	push.Client.ReadLimit = cfg.Push.ReadLimit
	push.ReconnectDelay = cfg.Push.ReconnectDelay
	push.BackoffMultiplier = cfg.Push.BackoffMultiplier
	push.ReconnectMaxDelay = cfg.Push.ReconnectMaxDelay

	return dashboard.Config{
		PageSize:       cfg.Listing.PageSize,
		Push:           push,
		DropOutOfOrder: !cfg.Push.AllowOutOfOrder,
	}
}

func archiveConfig(cfg config.ArchiveConfig) archive.Config {
	return archive.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}
}

func metricsMux(path string, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler(g))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

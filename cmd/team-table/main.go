// Command team-table runs the shared coordination server for a fleet of
// autonomous agents, speaking MCP over stdio or streamable HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brickmii/team-table/pkg/config"
	"github.com/Brickmii/team-table/pkg/mcp"
	"github.com/Brickmii/team-table/pkg/notify"
	"github.com/Brickmii/team-table/pkg/ratelimit"
	"github.com/Brickmii/team-table/pkg/store"
	"github.com/Brickmii/team-table/pkg/telemetry"
	"github.com/Brickmii/team-table/pkg/tools"
)

const version = "0.1.0"

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		dbPath     = flag.String("db", "", "override storage path")
		transport  = flag.String("transport", "", "override transport: stdio or http")
		listen     = flag.String("listen", "", "override HTTP listen address")
	)
	flag.Parse()

	if err := run(*configPath, *dbPath, *transport, *listen); err != nil {
		fmt.Fprintln(os.Stderr, "team-table:", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath, transport, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if transport != "" {
		cfg.Server.Transport = transport
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	// Stdio transport owns stdout for the protocol; logs go to stderr.
	logger, logLevel := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *telemetry.StoreMetrics
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig("team-table", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
		if metrics, err = telemetry.NewStoreMetrics(); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	var backend notify.Backend
	switch cfg.Notify.Backend {
	case "", "queue":
		backend = notify.NewQueueBackend(cfg.Notify.QueueSize)
	case "noop":
		backend = notify.NoopBackend{}
	default:
		return fmt.Errorf("unknown notify backend: %s", cfg.Notify.Backend)
	}

	opts := []store.Option{
		store.WithRateLimiter(ratelimit.New(cfg.RateLimit.Window(), cfg.RateLimit.Limit)),
		store.WithNotifier(backend),
	}
	if metrics != nil {
		opts = append(opts, store.WithRecorder(metrics))
	}
	st, err := store.Open(cfg.Storage.Path, cfg.Storage.BusyTimeout(), opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// With a config file present, pick up log level and rate limit changes
	// without a restart.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, config.WithWatchLogger(logger))
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.OnChange(func(updated *config.Config) {
			logLevel.Set(telemetry.ParseLevel(updated.Log.Level))
			st.RateLimiter().Reconfigure(updated.RateLimit.Window(), updated.RateLimit.Limit)
			logger.Info("configuration reloaded",
				"log_level", updated.Log.Level,
				"rate_limit", updated.RateLimit.Limit,
				"rate_window_seconds", updated.RateLimit.WindowSeconds)
		})
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	srv := mcp.NewServer("team-table", version)
	tools.NewService(st, logger).Register(srv)

	logger.Info("team-table starting",
		"version", version,
		"transport", cfg.Server.Transport,
		"db", cfg.Storage.Path)

	errCh := make(chan error, 1)
	go func() {
		switch cfg.Server.Transport {
		case "", "stdio":
			errCh <- srv.ServeStdio()
		case "http":
			logger.Info("listening", "addr", cfg.Server.Listen)
			errCh <- srv.ServeHTTP(cfg.Server.Listen)
		default:
			errCh <- fmt.Errorf("unknown transport: %s", cfg.Server.Transport)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

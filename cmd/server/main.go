package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/config"
	"github.com/mhollis/leadpipe/internal/history"
	"github.com/mhollis/leadpipe/internal/logging"
	"github.com/mhollis/leadpipe/internal/pipeline"
	"github.com/mhollis/leadpipe/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"campaign_api", cfg.Campaign.BaseURL,
		"history_enabled", cfg.History.Enabled(),
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Run history is optional: without a database the service still
	// imports and uploads, it just keeps no archive.
	var historyStore *history.Store
	if cfg.History.Enabled() {
		poolConfig, err := pgxpool.ParseConfig(cfg.History.DatabaseURL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.History.MaxConns)
		poolConfig.MinConns = int32(cfg.History.MinConns)
		poolConfig.MaxConnLifetime = cfg.History.MaxConnLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		historyStore = history.New(pool)
		if err := historyStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare history schema", "error", err)
			os.Exit(1)
		}
		slog.Info("run history enabled")
	}

	client := campaign.NewClient(cfg.Campaign.BaseURL, cfg.Campaign.Timeout, cfg.Campaign.MaxRetries)
	uploader := campaign.NewUploader(client, cfg.Campaign.BatchSize, cfg.Campaign.BatchDelay)

	var store pipeline.HistoryStore
	if historyStore != nil {
		store = historyStore
	}
	service := pipeline.NewService(pipeline.Options{
		DefaultRegion:   cfg.Import.DefaultRegion,
		ChunkSize:       cfg.Import.ChunkSize,
		WorkerThreshold: cfg.Import.WorkerThreshold,
		YieldInterval:   cfg.Import.YieldInterval,
		MaxConcurrent:   cfg.Import.MaxConcurrent,
		MaxWaitTime:     cfg.Import.MaxWaitTime,
		RunTimeout:      cfg.Import.Timeout,
	}, uploader, store)

	server := web.NewServer(cfg, service, client, historyStore)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight imports finish before the server stops accepting
		// their progress polls.
		if active := service.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

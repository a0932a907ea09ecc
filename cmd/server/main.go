// Orbit composite server entry point
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

	"github.com/robert-malhotra/orbit-composite/internal/api"
	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/config"
	"github.com/robert-malhotra/orbit-composite/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting orbit composite server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"month_key", cfg.Processing.MonthKey,
		"ratio_policy", cfg.Processing.RatioPolicy,
	)

	scripts := composite.NewRegistry(cfg.ScriptOptions())
	logger.Info("registered scripts", "scripts", scripts.Names())

	jobs, err := config.LoadJobs(cfg.Jobs.Dir, scripts)
	if err != nil {
		logger.Warn("failed to load jobs, using empty registry", "dir", cfg.Jobs.Dir, "error", err)
		jobs = config.NewJobRegistry()
	}
	logger.Info("loaded jobs", "count", jobs.Count())

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage.BucketURL, cfg.Storage.Prefix)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	logger.Info("opened tile storage", "bucket_url", cfg.Storage.BucketURL, "prefix", cfg.Storage.Prefix)

	handlers := api.NewHandlers(cfg, scripts, jobs, store, logger)
	router := api.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

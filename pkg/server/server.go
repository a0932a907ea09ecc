// Package server provides a public API for embedding the orbit composite service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/orbit-composite/internal/api"
	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/config"
	"github.com/robert-malhotra/orbit-composite/internal/storage"
)

// Options configures the composite server.
type Options struct {
	// BucketURL is the gocloud.dev bucket for tile output.
	// Default: "mem://"
	BucketURL string

	// StoragePrefix is prepended to every object key.
	StoragePrefix string

	// JobsDir is the path to batch job definition files.
	// Default: "" (no jobs)
	JobsDir string

	// MonthKey is "calendar-month" or "year-month".
	// Default: "calendar-month"
	MonthKey string

	// RatioPolicy is the radar WH ratio policy, "db-scaled" or "linear".
	// Default: "db-scaled"
	RatioPolicy string

	// Workers bounds concurrent pixel evaluations per tile.
	// Default: 0 (GOMAXPROCS)
	Workers int

	// MaxBodyBytes bounds request bodies.
	// Default: 64 MiB
	MaxBodyBytes int64

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a composite server that can be embedded in another application.
type Server struct {
	router chi.Router
	store  *storage.Store
}

// New creates a new composite server with the given options.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.BucketURL == "" {
		opts.BucketURL = "mem://"
	}
	if opts.MonthKey == "" {
		opts.MonthKey = string(composite.MonthKeyCalendar)
	}
	if opts.RatioPolicy == "" {
		opts.RatioPolicy = string(composite.RatioDecibelScaled)
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Port:            8080,
			MaxBodyBytes:    opts.MaxBodyBytes,
		},
		Processing: config.ProcessingConfig{
			MonthKey:    opts.MonthKey,
			RatioPolicy: opts.RatioPolicy,
			Workers:     opts.Workers,
		},
		Storage: config.StorageConfig{
			BucketURL: opts.BucketURL,
			Prefix:    opts.StoragePrefix,
		},
		Jobs:    config.JobsConfig{Dir: opts.JobsDir},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	scripts := composite.NewRegistry(cfg.ScriptOptions())

	jobs := config.NewJobRegistry()
	if opts.JobsDir != "" {
		loaded, err := config.LoadJobs(opts.JobsDir, scripts)
		if err != nil {
			opts.Logger.Warn("failed to load jobs, using empty registry",
				"dir", opts.JobsDir,
				"error", err,
			)
		} else {
			jobs = loaded
		}
	}

	store, err := storage.Open(ctx, cfg.Storage.BucketURL, cfg.Storage.Prefix)
	if err != nil {
		return nil, err
	}

	handlers := api.NewHandlers(cfg, scripts, jobs, store, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	return &Server{
		router: router,
		store:  store,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases the tile storage.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

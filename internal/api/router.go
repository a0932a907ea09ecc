package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/robert-malhotra/orbit-composite/internal/metrics"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse) // Add X-Request-ID to response headers
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5)) // Gzip compression
	r.Use(ContentTypeJSON)
	r.Use(MaxBodySize(h.cfg.Server.MaxBodyBytes))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/scripts", func(r chi.Router) {
		r.Get("/", h.Scripts)
		r.Route("/{script}", func(r chi.Router) {
			r.Get("/", h.Script)
			r.Post("/scenes", h.Scenes)
			r.Post("/tiles", h.Tiles)
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.Jobs)
		r.Route("/{job}", func(r chi.Router) {
			r.Get("/", h.Job)
			r.Post("/tiles/{tile}", h.JobTile)
			r.Get("/tiles/{tile}/dates", h.JobTileDates)
		})
	})

	r.Post("/extent", h.Extent)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/savegress/fraudlens/internal/config"
	"github.com/savegress/fraudlens/internal/pipeline"
	"github.com/savegress/fraudlens/internal/progress"
	"github.com/savegress/fraudlens/internal/reporting"
	"github.com/savegress/fraudlens/internal/storage"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, runner *pipeline.Runner, store storage.RunStore, generator *reporting.Generator, hub *progress.Hub) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		handlers: NewHandlers(runner, store, generator, hub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	origins := s.config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1/fraudlens", func(r chi.Router) {
		r.Get("/health", s.handlers.HealthCheck)

		// Analysis runs
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handlers.ListRuns)
			r.Post("/", s.handlers.StartRun)
			r.Get("/{id}", s.handlers.GetRun)
			r.Delete("/{id}", s.handlers.DeleteRun)
			r.Post("/{id}/cancel", s.handlers.CancelRun)
			r.Get("/{id}/features", s.handlers.GetRunFeatures)
			r.Get("/{id}/risk-scores", s.handlers.GetRunRiskScores)
			r.Get("/{id}/flagged", s.handlers.GetRunFlagged)
			r.Get("/{id}/report", s.handlers.GetRunReport)
			r.Get("/{id}/report.txt", s.handlers.GetRunReportText)
			r.Get("/{id}/export/flagged.csv", s.handlers.ExportFlaggedCSV)
			r.Get("/{id}/export/risk-summary.csv", s.handlers.ExportRiskSummaryCSV)
		})

		// Stats
		r.Get("/stats", s.handlers.GetStats)

		// Live progress feed
		r.Get("/ws", s.handlers.ServeWS)
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}

// Package api is the HTTP control surface: job creation, observation, user
// input, cancellation, resumption and settings. It never executes pipeline
// steps; all forward progress belongs to the worker.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/truetrack/truetrack/internal/api/middleware"
	"github.com/truetrack/truetrack/internal/log"
	"github.com/truetrack/truetrack/internal/settings"
	"github.com/truetrack/truetrack/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	store    store.JobStore
	settings *settings.Resolver
	validate *validator.Validate
	log      zerolog.Logger

	allowedOrigins []string
}

// New builds the API server.
func New(st store.JobStore, res *settings.Resolver, allowedOrigins []string) *Server {
	return &Server{
		store:          st,
		settings:       res,
		validate:       validator.New(),
		log:            log.WithComponent("api"),
		allowedOrigins: allowedOrigins,
	}
}

// Router assembles the chi router with the canonical middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(middleware.CORS(s.allowedOrigins))
	r.Use(log.Middleware())
	r.Use(middleware.APIRateLimit())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Post("/input", s.handleProvideInput)
			r.Post("/cancel", s.handleCancelJob)
			r.Post("/resume", s.handleResumeJob)
		})
	})

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings/music-library-path", s.handleSetMusicLibraryPath)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

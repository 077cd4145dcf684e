// Package api exposes the HTTP surface: submission ingestion, queries, and
// the GeoJSON/CSV exports.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tagyourcity/backend/internal/store"
)

// Options tunes the router's middleware stack.
type Options struct {
	// CORSOrigins is the allowed cross-origin caller list; empty means
	// allow-all.
	CORSOrigins []string

	// RequestTimeout bounds each request, including its database
	// round-trips. Zero disables the deadline.
	RequestTimeout time.Duration

	// IngestRateLimit caps POST /api/submissions per client IP per
	// minute. Zero disables the limit.
	IngestRateLimit int

	// MaxBodyBytes caps the ingestion request body.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes matches the collector clients' largest sessions.
const DefaultMaxBodyBytes = 50 << 20

// Server holds the handler dependencies.
type Server struct {
	store   store.Store
	opts    Options
	maxBody int64
}

// NewServer creates a Server backed by the given store.
func NewServer(st store.Store, opts Options) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Server{store: st, opts: opts, maxBody: maxBody}
}

// Router assembles the chi router with CORS, per-request deadline, rate
// limiting, and metrics.
func (s *Server) Router() chi.Router {
	opts := s.opts
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(metricsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)

		r.Route("/submissions", func(r chi.Router) {
			if opts.IngestRateLimit > 0 {
				r.With(httprate.LimitByIP(opts.IngestRateLimit, time.Minute)).Post("/", s.CreateSubmission)
			} else {
				r.Post("/", s.CreateSubmission)
			}
			r.Get("/", s.ListSubmissions)
			r.Get("/{id}", s.GetSubmission)
		})

		r.Get("/export/geojson", s.ExportGeoJSON)
		r.Get("/export/csv", s.ExportCSV)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})

	return r
}

// Package api exposes capacity recomputation over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/catalog"
	"github.com/sells-group/capacity-cli/internal/geo"
	"github.com/sells-group/capacity-cli/internal/store"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultMaxBodyBytes = 64 << 20
	DefaultTimeout      = 2 * time.Minute
)

// Defaults are the parameters and layer conventions a request starts from.
type Defaults struct {
	Params           capacity.Params
	Service          string
	SourceEPSG       int
	CapacityColumn   string
	PopulationColumn string
	BlockIDColumn    string
}

// Options configures a Server.
type Options struct {
	Catalog     *catalog.Catalog
	Store       store.Store // nil disables run recording and the runs routes
	Reprojector *geo.Reprojector
	Defaults    Defaults
	CORSOrigins []string
	// RateLimit is the sustained recompute requests per second; zero
	// disables limiting.
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
	Timeout      time.Duration
}

// Server handles the HTTP API.
type Server struct {
	catalog     *catalog.Catalog
	store       store.Store
	reprojector *geo.Reprojector
	defaults    Defaults
	origins     []string
	limiter     *rate.Limiter
	maxBody     int64
	timeout     time.Duration
	log         *zap.Logger
}

// New builds a Server from opts.
func New(opts Options) *Server {
	s := &Server{
		catalog:     opts.Catalog,
		store:       opts.Store,
		reprojector: opts.Reprojector,
		defaults:    opts.Defaults,
		origins:     opts.CORSOrigins,
		maxBody:     opts.MaxBodyBytes,
		timeout:     opts.Timeout,
		log:         zap.L().With(zap.String("component", "api")),
	}
	if s.catalog == nil {
		s.catalog = catalog.New()
	}
	if s.reprojector == nil {
		s.reprojector = geo.NewReprojector(nil)
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/services", s.handleListServices)
		r.Get("/services/{name}", s.handleGetService)

		r.With(s.rateLimit).Post("/recompute", s.handleRecompute)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// rateLimit rejects requests beyond the token bucket with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.String("component", "api"), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

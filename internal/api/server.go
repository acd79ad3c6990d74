package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starflux/internal/auth"
	"github.com/star/starflux/internal/cache"
	"github.com/star/starflux/internal/catalog"
	"github.com/star/starflux/internal/health"
	"github.com/star/starflux/internal/httputil"
	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/metrics"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	Auth           auth.Config
	RateLimit      float64 // requests per second per client; 0 disables
	RateBurst      int
	TrustProxy     bool
	MaxPoints      int
	MaxEvents      int
	RequestTimeout time.Duration
}

// Deps are the services the handlers use. Cache and Catalog may be nil.
type Deps struct {
	Evaluator *lightcurve.Evaluator
	Catalog   *catalog.Store
	Cache     *cache.ResultCache
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	h := &handlers{cfg: cfg, deps: deps, logger: logger}
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.catalogReady))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/v1/lightcurve", h.lightcurve)
	mux.HandleFunc("POST /api/v1/eclipses", h.eclipses)
	mux.HandleFunc("GET /api/v1/catalog/{name}", h.catalogSystem)
	mux.HandleFunc("GET /api/v1/catalog/{name}/lightcurve", h.catalogLightCurve)
	mux.HandleFunc("GET /api/v1/cache/stats", h.cacheStats)

	limiter := httputil.NewRateLimiter(httputil.RateLimitConfig{
		Rate:       cfg.RateLimit,
		Burst:      cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
		OnLimit:    func(*http.Request) { metrics.IncRateLimited() },
	})

	// Build middleware chain: metrics -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = limiter.Middleware(probePath)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starflux_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starflux_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	lightcurveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "starflux_lightcurve_duration_seconds",
			Help:    "Time to evaluate one light curve.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	lightcurvePointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starflux_lightcurve_points_total",
			Help: "Total number of light-curve samples evaluated.",
		},
	)

	lightcurveErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starflux_lightcurve_errors_total",
			Help: "Light-curve evaluations that failed, by error kind.",
		},
		[]string{"kind"},
	)

	eclipseSearchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "starflux_eclipse_search_duration_seconds",
			Help:    "Time to search one system for eclipse events.",
			Buckets: prometheus.DefBuckets,
		},
	)

	eclipseEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starflux_eclipse_events_total",
			Help: "Eclipse events found, by kind.",
		},
		[]string{"kind"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starflux_cache_hits_total",
			Help: "Light-curve cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starflux_cache_misses_total",
			Help: "Light-curve cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starflux_cache_evictions_total",
			Help: "Light-curve cache entries evicted.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starflux_cache_entries",
			Help: "Current number of cached light curves.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starflux_cache_size_bytes",
			Help: "Estimated memory held by cached light curves.",
		},
	)

	catalogPlanets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starflux_catalog_planets",
			Help: "Number of planets in the loaded catalog.",
		},
	)

	catalogLastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starflux_catalog_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful catalog refresh.",
		},
	)

	catalogAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starflux_catalog_age_seconds",
			Help: "Age of the loaded planet catalog in seconds.",
		},
	)

	catalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starflux_catalog_refresh_total",
			Help: "Catalog refresh attempts, by result.",
		},
		[]string{"result"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starflux_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		lightcurveDurationSeconds,
		lightcurvePointsTotal,
		lightcurveErrorsTotal,
		eclipseSearchDurationSeconds,
		eclipseEventsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheSizeBytes,
		catalogPlanets,
		catalogLastRefresh,
		catalogAge,
		catalogRefreshTotal,
		rateLimitedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLightCurve records one successful evaluation.
func RecordLightCurve(d time.Duration, points int) {
	lightcurveDurationSeconds.Observe(d.Seconds())
	lightcurvePointsTotal.Add(float64(points))
}

// IncLightCurveErrors counts a failed evaluation. kind is "validation",
// "convergence", "canceled" or "other".
func IncLightCurveErrors(kind string) {
	lightcurveErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordEclipseSearch records one eclipse search and the events it found.
func RecordEclipseSearch(d time.Duration, transits, occultations int) {
	eclipseSearchDurationSeconds.Observe(d.Seconds())
	eclipseEventsTotal.WithLabelValues("transit").Add(float64(transits))
	eclipseEventsTotal.WithLabelValues("occultation").Add(float64(occultations))
}

func IncCacheHits()   { cacheHitsTotal.Inc() }
func IncCacheMisses() { cacheMissesTotal.Inc() }

func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }

// RecordCatalogRefresh records a refresh attempt. planets is ignored on
// failure.
func RecordCatalogRefresh(ok bool, planets int) {
	if !ok {
		catalogRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	catalogRefreshTotal.WithLabelValues("success").Inc()
	catalogPlanets.Set(float64(planets))
	catalogLastRefresh.SetToCurrentTime()
}

// SetCatalogAge records the age of the loaded catalog.
func SetCatalogAge(seconds float64) { catalogAge.Set(seconds) }

func IncRateLimited() { rateLimitedTotal.Inc() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}

var knownRoutes = map[string]bool{
	"/":                   true,
	"/healthz":            true,
	"/readyz":             true,
	"/metrics":            true,
	"/api/v1/lightcurve":  true,
	"/api/v1/eclipses":    true,
	"/api/v1/catalog":     true,
	"/api/v1/cache/stats": true,
}

const catalogPrefix = "/api/v1/catalog/"

// normalizeRoute maps a request path to a bounded set of labels so that
// catalog names and scanner traffic do not create new series.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if name, ok := strings.CutPrefix(path, catalogPrefix); ok && name != "" {
		if strings.HasSuffix(name, "/lightcurve") && strings.Count(name, "/") == 1 {
			return catalogPrefix + "{name}/lightcurve"
		}
		if !strings.Contains(name, "/") {
			return catalogPrefix + "{name}"
		}
	}
	return "other"
}

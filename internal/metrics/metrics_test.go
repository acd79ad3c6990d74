package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/lightcurve", "/api/v1/lightcurve"},
		{"/api/v1/eclipses", "/api/v1/eclipses"},
		{"/api/v1/catalog", "/api/v1/catalog"},
		{"/api/v1/cache/stats", "/api/v1/cache/stats"},

		// Parameterized catalog routes collapse to one label.
		{"/api/v1/catalog/HD189733", "/api/v1/catalog/{name}"},
		{"/api/v1/catalog/kepler-10b", "/api/v1/catalog/{name}"},
		{"/api/v1/catalog/TRAPPIST-1/lightcurve", "/api/v1/catalog/{name}/lightcurve"},
		{"/api/v1/catalog/WASP-12b/lightcurve", "/api/v1/catalog/{name}/lightcurve"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/api/v1/catalog/", "other"},
		{"/api/v1/catalog/a/b/c", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 catalog names produce exactly 1
// distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/catalog/KOI-" + string(rune('0'+i%10)) + string(rune('0'+i/10)))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareCountsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/eclipses", "POST", "418"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/eclipses", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/eclipses", "POST", "418"))
	if after-before != 1 {
		t.Errorf("request counter delta = %g, want 1", after-before)
	}
}

func TestRecordCatalogRefresh(t *testing.T) {
	RecordCatalogRefresh(true, 42)
	if got := testutil.ToFloat64(catalogPlanets); got != 42 {
		t.Errorf("catalog planets = %g, want 42", got)
	}
	errsBefore := testutil.ToFloat64(catalogRefreshTotal.WithLabelValues("error"))
	RecordCatalogRefresh(false, 7)
	if got := testutil.ToFloat64(catalogPlanets); got != 42 {
		t.Errorf("catalog planets after failure = %g, want 42", got)
	}
	if d := testutil.ToFloat64(catalogRefreshTotal.WithLabelValues("error")) - errsBefore; d != 1 {
		t.Errorf("error refresh delta = %g, want 1", d)
	}
}

func TestRecordLightCurve(t *testing.T) {
	before := testutil.ToFloat64(lightcurvePointsTotal)
	RecordLightCurve(15*time.Millisecond, 250)
	if d := testutil.ToFloat64(lightcurvePointsTotal) - before; d != 250 {
		t.Errorf("points delta = %g, want 250", d)
	}
}

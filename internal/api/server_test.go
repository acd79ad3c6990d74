package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/starflux/internal/auth"
	"github.com/star/starflux/internal/cache"
	"github.com/star/starflux/internal/catalog"
	"github.com/star/starflux/internal/eclipse"
	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/system"
	"github.com/star/starflux/internal/units"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const hotJupiter = `{"lmax": 1, "secondaries": [{"name": "b", "r": 0.1, "a": 50, "porb": 1}]}`

func testStore() *catalog.Store {
	store := catalog.NewStore()
	store.Set(&catalog.Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Planets: []catalog.Planet{
			{Host: "Kepler-10", Letter: "b", OrbPer: 0.837491, TranMid: 2454964.57513,
				RadJ: 0.132, Inc: 84.4, StRad: 1.065, StMass: 0.91, TranDepth: 0.015},
			{Host: "Kepler-10", Letter: "d", Incomplete: true},
		},
	})
	return store
}

func testServer(cfg Config, store *catalog.Store) (http.Handler, *cache.ResultCache) {
	logger := testLogger()
	rc := cache.NewResultCache(cache.Config{TTL: time.Minute}, nil, logger)
	srv := NewServer(cfg, Deps{
		Evaluator: lightcurve.NewEvaluator(2, logger),
		Catalog:   store,
		Cache:     rc,
	}, logger)
	return srv.Handler(), rc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestLightCurveBudget verifies that requests exceeding the max points
// budget are rejected with 400 instead of consuming unbounded CPU.
func TestLightCurveBudget(t *testing.T) {
	h, _ := testServer(Config{MaxPoints: 1000}, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "max budget exceeded: n=1001",
			body:       `{"system": ` + hotJupiter + `, "start": 0, "stop": 1, "n": 1001}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "max budget exceeded: explicit times",
			body:       `{"system": ` + hotJupiter + `, "times": [` + strings.Repeat("0,", 1000) + `0]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "within budget: n=1000",
			body:       `{"system": ` + hotJupiter + `, "start": 0, "stop": 1, "n": 1000}`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/v1/lightcurve", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusBadRequest {
				var resp map[string]any
				json.NewDecoder(w.Body).Decode(&resp)
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				if resp["max_points"] == nil {
					t.Error("expected max_points field in response")
				}
			}
		})
	}
}

func TestLightCurveTransit(t *testing.T) {
	h, rc := testServer(Config{}, nil)
	body := `{"system": ` + hotJupiter + `, "times": [0, 0.25]}`

	w := do(h, "POST", "/api/v1/lightcurve", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Cache"); got != "miss" {
		t.Errorf("X-Cache = %q, want miss", got)
	}
	var curve lightcurve.Curve
	if err := json.NewDecoder(w.Body).Decode(&curve); err != nil {
		t.Fatal(err)
	}
	if len(curve.Flux) != 2 {
		t.Fatalf("flux has %d samples, want 2", len(curve.Flux))
	}
	if depth := 1 - curve.Flux[0][0]; math.Abs(depth-0.01) > 1e-3 {
		t.Errorf("transit depth = %g, want ~0.01", depth)
	}
	if math.Abs(curve.Flux[1][0]-1) > 1e-12 {
		t.Errorf("out-of-transit flux = %g, want 1", curve.Flux[1][0])
	}

	again := do(h, "POST", "/api/v1/lightcurve", body)
	if got := again.Header().Get("X-Cache"); got != "hit" {
		t.Errorf("second request X-Cache = %q, want hit", got)
	}
	first := do(h, "POST", "/api/v1/lightcurve", `{"system": `+hotJupiter+`, "times": [0, 0.25]}`)
	if !bytes.Equal(again.Body.Bytes(), first.Body.Bytes()) {
		t.Error("cached response differs from the stored body")
	}
	if stats := rc.Stats(); stats.Entries != 1 || stats.Hits != 2 {
		t.Errorf("cache stats = %+v", stats)
	}
}

func TestLightCurveErrors(t *testing.T) {
	h, _ := testServer(Config{}, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad eccentricity", `{"system": {"secondaries": [{"ecc": 1.2}]}, "times": [0]}`, http.StatusBadRequest},
		{"bad lmax", `{"system": {"lmax": 99}, "times": [0]}`, http.StatusBadRequest},
		{"unknown field", `{"system": {}, "times": [0], "bogus": 1}`, http.StatusBadRequest},
		{"no times", `{"system": {}}`, http.StatusBadRequest},
		{"both forms", `{"system": {}, "times": [0], "n": 3, "start": 0, "stop": 1}`, http.StatusBadRequest},
		{"inverted window", `{"system": {}, "start": 1, "stop": 0, "n": 3}`, http.StatusBadRequest},
		{"malformed", `{"system":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/v1/lightcurve", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			var resp map[string]any
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp["error"] == nil {
				t.Errorf("expected JSON error body, got %v (%v)", resp, err)
			}
		})
	}

	if w := do(h, "GET", "/api/v1/lightcurve", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}
}

func TestEclipses(t *testing.T) {
	h, _ := testServer(Config{}, nil)

	w := do(h, "POST", "/api/v1/eclipses", `{"system": `+hotJupiter+`, "start": -0.25, "stop": 1.25}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp eclipseResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Bodies) != 1 {
		t.Fatalf("bodies = %d, want 1", len(resp.Bodies))
	}
	var kinds []string
	for _, e := range resp.Bodies[0].Events {
		kinds = append(kinds, e.Kind)
	}
	want := []string{eclipse.KindTransit, eclipse.KindOccultation, eclipse.KindTransit}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	if w := do(h, "POST", "/api/v1/eclipses", `{"system": {}, "start": 1, "stop": 1}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty window status = %d, want 400", w.Code)
	}
}

func TestCatalogRoutes(t *testing.T) {
	store := catalog.NewStore()
	h, _ := testServer(Config{}, store)

	if w := do(h, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before load = %d, want 503", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("lookup before load = %d, want 503", w.Code)
	}

	store.Set(testStore().Get())
	if w := do(h, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz after load = %d, want 200", w.Code)
	}

	w := do(h, "GET", "/api/v1/catalog/kepler10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status = %d: %s", w.Code, w.Body.String())
	}
	var resp catalogResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Planets) != 2 || resp.System == nil || len(resp.System.Secondaries) != 1 {
		t.Errorf("catalog response = %+v", resp)
	}

	if w := do(h, "GET", "/api/v1/catalog/Kepler-10d", ""); w.Code != http.StatusOK {
		t.Errorf("incomplete planet lookup = %d, want 200", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10d/lightcurve", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("incomplete planet light curve = %d, want 422", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Nowhere-1", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown system = %d, want 404", w.Code)
	}

	w = do(h, "GET", "/api/v1/catalog/Kepler-10b/lightcurve?n=51&u1=0.3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("catalog light curve status = %d: %s", w.Code, w.Body.String())
	}
	var curve lightcurve.Curve
	if err := json.NewDecoder(w.Body).Decode(&curve); err != nil {
		t.Fatal(err)
	}
	if len(curve.Flux) != 51 {
		t.Fatalf("samples = %d, want 51", len(curve.Flux))
	}
	// The default window is centred on mid-transit and ends out of transit.
	mid, edge := curve.Flux[25][0], curve.Flux[0][0]
	if !(mid < edge) || curve.Flux[50][0] != edge {
		t.Errorf("flux at mid-transit = %g, at edges = %g and %g", mid, edge, curve.Flux[50][0])
	}

	// Calendar times select the window around the 2009-05-13 01:48 UTC transit.
	w = do(h, "GET", "/api/v1/catalog/Kepler-10b/lightcurve?n=3&start=2009-05-13T01:18:11Z&stop=2009-05-13T02:18:11Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("calendar window status = %d: %s", w.Code, w.Body.String())
	}
	curve = lightcurve.Curve{}
	if err := json.NewDecoder(w.Body).Decode(&curve); err != nil {
		t.Fatal(err)
	}
	start := units.JulianDate(time.Date(2009, 5, 13, 1, 18, 11, 0, time.UTC))
	if len(curve.Time) != 3 || math.Abs(curve.Time[0]-start) > 1e-6 || math.Abs(curve.Time[1]-2454964.57513) > 1e-4 {
		t.Errorf("calendar window times = %v, want start %.6f", curve.Time, start)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10b/lightcurve?start=2009-13-01", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad start = %d, want 400", w.Code)
	}

	if w := do(h, "GET", "/api/v1/catalog/Kepler-10b/lightcurve?u1=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad u1 = %d, want 400", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10b/lightcurve?u1=2&u2=2", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-physical limb darkening = %d, want 400", w.Code)
	}
}

func TestCacheStats(t *testing.T) {
	h, _ := testServer(Config{}, nil)
	w := do(h, "GET", "/api/v1/cache/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats cache.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0", stats.Entries)
	}
}

func TestAuthAndRateLimit(t *testing.T) {
	h, _ := testServer(Config{
		Auth:      auth.Config{Enabled: true, Token: "tok"},
		RateLimit: 0.001,
		RateBurst: 2,
	}, testStore())

	if w := do(h, "POST", "/api/v1/lightcurve", `{"system": {}, "times": [0]}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10", ""); w.Code != http.StatusOK {
		t.Errorf("public catalog lookup status = %d, want 200", w.Code)
	}
	if w := do(h, "GET", "/api/v1/catalog/Kepler-10", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
	if w := do(h, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 regardless of limit", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&system.ValidationError{Field: "ecc"}, http.StatusBadRequest},
		{fmt.Errorf("%w: lmax", lightcurve.ErrSpec), http.StatusBadRequest},
		{eclipse.ErrWindow, http.StatusBadRequest},
		{fmt.Errorf("t=1 d: %w", &kepler.ConvergenceError{}), http.StatusUnprocessableEntity},
		{catalog.ErrNotFound, http.StatusNotFound},
		{catalog.ErrIncomplete, http.StatusUnprocessableEntity},
		{catalog.ErrNoData, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

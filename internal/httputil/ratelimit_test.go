package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Rate: 1, Burst: 2})
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.Allow("a")
	if ok {
		t.Fatal("request beyond burst allowed")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want (0, 1s]", wait)
	}

	// Other clients have their own bucket.
	if ok, _ := l.Allow("b"); !ok {
		t.Error("second client rejected")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("request after refill rejected")
	}

	// Idle clients are forgotten when a new one arrives.
	now = now.Add(time.Hour)
	l.Allow("c")
	if n := l.Len(); n != 1 {
		t.Errorf("tracked clients = %d, want 1", n)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	var limited int
	l := NewRateLimiter(RateLimitConfig{Rate: 0.001, Burst: 1, OnLimit: func(*http.Request) { limited++ }})
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := l.Middleware(func(path string) bool { return path == "/healthz" })(ok)

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "192.0.2.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := do("/api/v1/catalog/x"); w.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do("/api/v1/catalog/x")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp["error"] == "" {
		t.Errorf("error body = %v, %v", resp, err)
	}
	if limited != 1 {
		t.Errorf("OnLimit called %d times, want 1", limited)
	}
	if w := do("/healthz"); w.Code != http.StatusNoContent {
		t.Errorf("exempt path status = %d", w.Code)
	}
}

package httputil

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Rate       float64 // requests per second; <= 0 disables limiting
	Burst      int
	TrustProxy bool
	// OnLimit is called for every rejected request.
	OnLimit func(r *http.Request)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks a token bucket per client key.
type RateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	visitors map[string]*visitor
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a limiter. Buckets idle for longer than it takes to
// refill completely are forgotten.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	idle := time.Minute
	if cfg.Rate > 0 {
		refill := time.Duration(float64(cfg.Burst) / cfg.Rate * float64(time.Second))
		idle = max(idle, refill)
	}
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		idle:     idle,
		now:      time.Now,
	}
}

// Allow reports whether a request from key may proceed, and if not how long
// until it would.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	if l.cfg.Rate <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		l.pruneLocked(now)
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	res := v.limiter.ReserveN(now, 1)
	l.mu.Unlock()

	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// pruneLocked drops idle visitors. Caller must hold mu.
func (l *RateLimiter) pruneLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Paths for which exempt returns true are never limited.
func (l *RateLimiter) Middleware(exempt func(path string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt != nil && exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(ClientKey(ClientIP(r, l.cfg.TrustProxy)))
			if !ok {
				if l.cfg.OnLimit != nil {
					l.cfg.OnLimit(r)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

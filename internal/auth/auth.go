// Package auth enforces Bearer token authentication on the compute
// endpoints.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/starflux/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz":            true,
	"/readyz":             true,
	"/metrics":            true,
	"/api/v1/cache/stats": true,
}

// catalogPrefix serves cheap catalog lookups, which are public. Light
// curves computed from the catalog are not.
const catalogPrefix = "/api/v1/catalog/"

// IsExempt returns true if the path is exempt from auth.
func IsExempt(path string) bool {
	if exemptPaths[path] {
		return true
	}
	if rest, ok := strings.CutPrefix(path, catalogPrefix); ok {
		return rest != "" && !strings.Contains(rest, "/")
	}
	return false
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")

			if !found || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="starflux"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Package config loads server settings from STARFLUX_* environment
// variables and system descriptions from YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable name.
const Prefix = "STARFLUX_"

// Server holds the HTTP service configuration.
type Server struct {
	Addr     string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	AuthEnabled bool   `env:"AUTH_ENABLED"`
	AuthToken   string `env:"AUTH_TOKEN"`

	Workers        int           `env:"WORKERS"`
	MaxPoints      int           `env:"MAX_POINTS" envDefault:"100000"`
	MaxEvents      int           `env:"MAX_EVENTS" envDefault:"100"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	RateLimit  float64 `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst  int     `env:"RATE_BURST" envDefault:"20"`
	TrustProxy bool    `env:"TRUST_PROXY"`

	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	CacheMaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"1024"`
	CacheSweep      time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"30s"`

	CatalogFetch    bool          `env:"CATALOG_FETCH" envDefault:"true"`
	CatalogURL      string        `env:"CATALOG_SOURCE_URL"`
	CatalogCacheDir string        `env:"CATALOG_CACHE_DIR" envDefault:"/tmp/starflux/catalog"`
	CatalogMaxAge   time.Duration `env:"CATALOG_MAX_AGE" envDefault:"168h"`
	CatalogMaxFiles int           `env:"CATALOG_MAX_FILES" envDefault:"5"`
	CatalogCheck    time.Duration `env:"CATALOG_CHECK_INTERVAL" envDefault:"1h"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses the server configuration from the environment.
func Load() (Server, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the server configuration from the given variables instead
// of the process environment.
func LoadFrom(vars map[string]string) (Server, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be expressed as defaults.
func (c Server) Validate() error {
	var errs []error
	if c.AuthEnabled && c.AuthToken == "" {
		errs = append(errs, errors.New(Prefix+"AUTH_TOKEN is required when auth is enabled"))
	}
	if c.MaxPoints < 1 {
		errs = append(errs, fmt.Errorf("%sMAX_POINTS must be positive, got %d", Prefix, c.MaxPoints))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%sRATE_LIMIT must not be negative, got %g", Prefix, c.RateLimit))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sREQUEST_TIMEOUT must be positive, got %s", Prefix, c.RequestTimeout))
	}
	if c.CatalogCheck <= 0 {
		errs = append(errs, fmt.Errorf("%sCATALOG_CHECK_INTERVAL must be positive, got %s", Prefix, c.CatalogCheck))
	}
	return errors.Join(errs...)
}

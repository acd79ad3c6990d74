package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/starflux/internal/api"
	"github.com/star/starflux/internal/auth"
	"github.com/star/starflux/internal/cache"
	"github.com/star/starflux/internal/catalog"
	"github.com/star/starflux/internal/config"
	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/metrics"
	"github.com/star/starflux/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "starflux", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	store := catalog.NewStore()
	svc := catalog.NewService(
		catalog.NewFetcher(cfg.CatalogURL, logger),
		catalog.NewCache(cfg.CatalogCacheDir, cfg.CatalogMaxFiles),
		store,
		cfg.CatalogMaxAge,
		logger,
	)

	// Load whatever is cached so the service can answer before the first fetch.
	if err := svc.LoadFromCache(); err != nil {
		logger.Info("no catalog cache found, starting without catalog data", "error", err)
	}

	resultCache := cache.NewResultCache(cache.Config{
		TTL:           cfg.CacheTTL,
		MaxEntries:    cfg.CacheMaxEntries,
		SweepInterval: cfg.CacheSweep,
	}, func() time.Time {
		if ds := store.Get(); ds != nil {
			return ds.FetchedAt
		}
		return time.Time{}
	}, logger)

	srv := api.NewServer(api.Config{
		Addr:           cfg.Addr,
		Auth:           auth.Config{Enabled: cfg.AuthEnabled, Token: cfg.AuthToken},
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		TrustProxy:     cfg.TrustProxy,
		MaxPoints:      cfg.MaxPoints,
		MaxEvents:      cfg.MaxEvents,
		RequestTimeout: cfg.RequestTimeout,
	}, api.Deps{
		Evaluator: lightcurve.NewEvaluator(cfg.Workers, logger),
		Catalog:   store,
		Cache:     resultCache,
	}, logger)

	// Start cache background worker.
	go resultCache.Start(ctx)

	if cfg.CatalogFetch {
		go refreshCatalog(ctx, svc, cfg.CatalogCheck, logger)
	}

	// Background goroutine to update catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.Addr,
			"auth_enabled", cfg.AuthEnabled,
			"workers", cfg.Workers,
			"catalog_fetch", cfg.CatalogFetch,
			"tracing", cfg.OTelEndpoint != "",
		)
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// refreshCatalog keeps the catalog fresh, checking immediately and then
// every interval.
func refreshCatalog(ctx context.Context, svc *catalog.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := svc.EnsureFresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("catalog unavailable", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

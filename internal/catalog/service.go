package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/starflux/internal/metrics"
)

// DefaultMaxAge is how long a downloaded table is used before refreshing.
const DefaultMaxAge = 7 * 24 * time.Hour

// Service ties the fetcher, disk cache and in-memory store together.
type Service struct {
	fetcher *Fetcher
	cache   *Cache
	store   *Store
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. maxAge <= 0 selects DefaultMaxAge.
func NewService(fetcher *Fetcher, cache *Cache, store *Store, maxAge time.Duration, logger *slog.Logger) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		store:   store,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
	}
}

// Store returns the store the service loads into.
func (s *Service) Store() *Store { return s.store }

// LoadFromCache parses the newest cache file into the store.
func (s *Service) LoadFromCache() error {
	data, ts, err := s.cache.LoadLatest()
	if err != nil {
		return err
	}
	planets, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		return fmt.Errorf("parsing cached planet table: %w", err)
	}
	s.store.Set(&Dataset{Source: "cache", FetchedAt: ts, Planets: planets})
	s.logger.Info("catalog loaded from cache",
		"planets", len(planets),
		"age", humanize.RelTime(ts, s.now(), "ago", "from now"),
	)
	metrics.RecordCatalogRefresh(true, len(planets))
	return nil
}

// Refresh downloads, caches, parses and stores the planet table. Concurrent
// refreshes are serialised.
func (s *Service) Refresh(ctx context.Context) error {
	ctx, span := otel.Tracer("github.com/star/starflux/internal/catalog").Start(ctx, "catalog.Refresh")
	defer span.End()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	err := s.refresh(ctx)
	metrics.RecordCatalogRefresh(err == nil, s.planetCount())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return err
	}
	span.SetAttributes(attribute.Int("planets", s.planetCount()))
	return nil
}

func (s *Service) refresh(ctx context.Context) error {
	data, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	planets, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		return fmt.Errorf("parsing planet table: %w", err)
	}
	if len(planets) == 0 {
		return fmt.Errorf("planet table from %s has no rows", s.fetcher.SourceURL())
	}

	now := s.now()
	if err := s.cache.Write(data, now); err != nil {
		// The fresh data is still usable without the disk copy.
		s.logger.Warn("failed to write catalog cache", "error", err)
	}
	s.store.Set(&Dataset{Source: s.fetcher.SourceURL(), FetchedAt: now, Planets: planets})
	s.logger.Info("catalog refreshed", "planets", len(planets))
	return nil
}

// EnsureFresh loads the cache when the store is empty and refreshes from the
// source when the cached table is older than the max age. When the refresh
// fails but cached data is loaded, the error is logged and nil returned.
func (s *Service) EnsureFresh(ctx context.Context) error {
	if s.store.Get() == nil {
		if err := s.LoadFromCache(); err != nil {
			s.logger.Info("no usable catalog cache", "error", err)
		}
	}
	if !s.cache.Stale(s.maxAge, s.now()) && s.store.Get() != nil {
		return nil
	}

	if err := s.Refresh(ctx); err != nil {
		if s.store.Get() != nil {
			s.logger.Warn("catalog refresh failed, serving cached data", "error", err)
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) planetCount() int {
	if ds := s.store.Get(); ds != nil {
		return len(ds.Planets)
	}
	return 0
}

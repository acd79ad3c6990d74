// Package cache provides an in-memory cache of computed light curves and
// eclipse searches, keyed by a hash of the canonical request.
//
// Entries expire after a TTL. A background sweeper evicts expired entries
// and, when the planet catalog is refreshed, drops every entry that was
// derived from the previous catalog.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"

	"github.com/star/starflux/internal/metrics"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	TTL           time.Duration // Entry lifetime (default: 10m)
	MaxEntries    int           // Oldest entries are evicted beyond this (default: 1024)
	SweepInterval time.Duration // How often expired entries are removed (default: 30s)
}

// Key identifies a cached result.
type Key uint64

// String formats the key as 16 hex digits.
func (k Key) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// NewKey hashes kind and the JSON encoding of req. encoding/json sorts map
// keys and emits struct fields in declaration order, so equal requests give
// equal keys.
func NewKey(kind string, req any) (Key, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("encoding cache key: %w", err)
	}
	h := xxh3.New()
	h.WriteString(kind)
	h.Write([]byte{0})
	h.Write(b)
	return Key(h.Sum64()), nil
}

// Entry is a cached, already encoded response body.
type Entry struct {
	Body      []byte
	StoredAt  time.Time
	ExpiresAt time.Time
	// Catalog marks results derived from the planet catalog.
	Catalog bool
}

// ResultCache is an in-memory cache of encoded results.
// Safe for concurrent use by multiple goroutines.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	size    int64

	config Config
	logger *slog.Logger
	now    func() time.Time

	// Catalog generation for change detection.
	dataset        func() time.Time
	currentDataset time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewResultCache creates a new result cache. dataset, if non-nil, reports
// when the current catalog was fetched; a change invalidates catalog entries.
func NewResultCache(config Config, dataset func() time.Time, logger *slog.Logger) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1024
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	logger.Info("cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
		"sweep_seconds", config.SweepInterval.Seconds(),
	)

	c := &ResultCache{
		entries: make(map[Key]*Entry),
		config:  config,
		logger:  logger,
		now:     time.Now,
		dataset: dataset,
	}
	if dataset != nil {
		c.currentDataset = dataset()
	}
	return c
}

// Get returns the cached body for key, or nil if absent or expired.
func (c *ResultCache) Get(key Key) []byte {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.ExpiresAt) {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Body
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// Put stores body under key. When the cache is full the oldest entries are
// evicted.
func (c *ResultCache) Put(key Key, body []byte, catalog bool) {
	now := c.now()
	entry := &Entry{
		Body:      body,
		StoredAt:  now,
		ExpiresAt: now.Add(c.config.TTL),
		Catalog:   catalog,
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.size -= entrySize(old)
	}
	c.entries[key] = entry
	c.size += entrySize(entry)
	removed := c.evictOldestLocked()
	c.mu.Unlock()

	c.recordEvictions(removed, "capacity")
	c.updateMetrics()
}

// evictOldestLocked drops the oldest entries beyond MaxEntries. Caller must
// hold mu.
func (c *ResultCache) evictOldestLocked() int {
	removed := 0
	for len(c.entries) > c.config.MaxEntries {
		var (
			oldestKey Key
			oldest    *Entry
		)
		for k, e := range c.entries {
			if oldest == nil || e.StoredAt.Before(oldest.StoredAt) {
				oldestKey, oldest = k, e
			}
		}
		c.size -= entrySize(oldest)
		delete(c.entries, oldestKey)
		removed++
	}
	return removed
}

// evictExpired removes entries past their expiry time.
func (c *ResultCache) evictExpired() int {
	now := c.now()
	return c.removeIf(func(e *Entry) bool { return !now.Before(e.ExpiresAt) }, "expired")
}

// removeIf deletes every entry matching pred.
func (c *ResultCache) removeIf(pred func(*Entry) bool, reason string) int {
	var removed int
	c.mu.Lock()
	for k, e := range c.entries {
		if pred(e) {
			c.size -= entrySize(e)
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	c.recordEvictions(removed, reason)
	if removed > 0 {
		c.updateMetrics()
	}
	return removed
}

func (c *ResultCache) recordEvictions(n int, reason string) {
	if n == 0 {
		return
	}
	c.evictions.Add(int64(n))
	metrics.AddCacheEvictions(n)
	c.logger.Debug("cache eviction", "entries_removed", n, "reason", reason)
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries   int       `json:"entries"`
	SizeBytes int64     `json:"size_bytes"`
	Size      string    `json:"size"`
	Oldest    time.Time `json:"oldest,omitzero"`
	Newest    time.Time `json:"newest,omitzero"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	count, size := len(c.entries), c.size
	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.StoredAt.Before(oldest) {
			oldest = e.StoredAt
		}
		if newest.IsZero() || e.StoredAt.After(newest) {
			newest = e.StoredAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:   count,
		SizeBytes: size,
		Size:      humanize.IBytes(uint64(size)),
		Oldest:    oldest,
		Newest:    newest,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// entrySize is a rough estimate of an entry's memory footprint: the body
// plus the entry struct and map slot.
func entrySize(e *Entry) int64 {
	return int64(len(e.Body)) + 96
}

// updateMetrics publishes current cache size to Prometheus.
func (c *ResultCache) updateMetrics() {
	c.mu.RLock()
	count, size := len(c.entries), c.size
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(size)
}

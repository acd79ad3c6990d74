package cache

import (
	"context"
	"time"
)

// Start runs the background maintenance loop. On every tick it checks for a
// catalog change and evicts expired entries.
//
// Blocks until ctx is cancelled.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick runs one iteration of the maintenance loop.
func (c *ResultCache) tick() {
	if c.catalogChanged() {
		c.performCutover()
	}

	if removed := c.evictExpired(); removed > 0 {
		stats := c.Stats()
		c.logger.Debug("cache swept",
			"expired", removed,
			"entries", stats.Entries,
			"size", stats.Size,
		)
	}
}

package cache

import "time"

// catalogChanged checks if the catalog has been refreshed since the last
// cutover.
func (c *ResultCache) catalogChanged() bool {
	if c.dataset == nil {
		return false
	}
	return !c.dataset().Equal(c.currentDataset)
}

// performCutover drops every entry derived from the previous catalog.
// Entries computed from explicit system descriptions are kept.
func (c *ResultCache) performCutover() {
	next := c.dataset()
	c.logger.Info("catalog cutover",
		"old_dataset_fetched_at", c.currentDataset.UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", next.UTC().Format(time.RFC3339),
	)

	removed := c.removeIf(func(e *Entry) bool { return e.Catalog }, "catalog")
	c.currentDataset = next

	c.logger.Info("catalog cutover complete", "entries_removed", removed)
}

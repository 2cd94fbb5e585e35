package capability

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds the last Report. It is owned by the composition root and
// safe for concurrent use; concurrent refreshes share one probe run.
type Cache struct {
	detector *Detector

	mu     sync.RWMutex
	report *Report
	gen    uint64

	group singleflight.Group
}

// NewCache creates an empty cache over d.
func NewCache(d *Detector) *Cache {
	return &Cache{detector: d}
}

// Get returns the cached report, probing when empty or when forceRefresh
// is set. A report from an interrupted probe is returned but not cached.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) Report {
	if !forceRefresh {
		c.mu.RLock()
		r := c.report
		c.mu.RUnlock()
		if r != nil {
			return *r
		}
	}

	v, _, _ := c.group.Do("detect", func() (any, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		r := c.detector.Detect(ctx)

		c.mu.Lock()
		// An Invalidate during the probe wins. A probe that could not run
		// says nothing about the platform.
		if c.gen == gen && r.probeErr == nil {
			c.report = &r
		}
		c.mu.Unlock()
		return r, nil
	})
	return v.(Report)
}

// Invalidate clears the cached report.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.report = nil
	c.gen++
	c.mu.Unlock()
}

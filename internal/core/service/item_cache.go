package service

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

type ItemLister interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
}

// ItemCache holds a process-wide snapshot of all items for the listing views.
// Shipment validation never reads it.
type ItemCache struct {
	store   ItemLister
	metrics *Metrics
	group   singleflight.Group

	mu         sync.RWMutex
	items      []domain.Item
	valid      bool
	generation uint64
}

func NewItemCache(store ItemLister, metrics *Metrics) *ItemCache {
	return &ItemCache{store: store, metrics: metrics}
}

// Items returns the cached snapshot, loading it first if it was invalidated.
func (c *ItemCache) Items(ctx context.Context) ([]domain.Item, error) {
	c.mu.RLock()
	if c.valid {
		items := slices.Clone(c.items)
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Refresh re-reads the whole store and replaces the snapshot. Concurrent
// callers share one read. A read that overlaps an Invalidate is returned to
// its callers but not kept.
func (c *ItemCache) Refresh(ctx context.Context) ([]domain.Item, error) {
	v, err, _ := c.group.Do("items", func() (any, error) {
		c.mu.RLock()
		generation := c.generation
		c.mu.RUnlock()

		items, err := c.store.ListItems(ctx)
		if err != nil {
			c.metrics.cacheRefresh("error")
			return nil, err
		}

		c.mu.Lock()
		if c.generation == generation {
			c.items = items
			c.valid = true
		}
		c.mu.Unlock()

		c.metrics.cacheRefresh("ok")
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.Item)), nil
}

func (c *ItemCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.items = nil
	c.generation++
	c.mu.Unlock()

	c.metrics.cacheInvalidated()
}

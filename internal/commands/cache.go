package commands

import (
	"sync"
	"time"
)

type CacheItem struct {
	ChartData  []byte
	Caption    string
	Expiration time.Time
}

// chartCache keeps rendered charts per ISIN for a fixed duration
type chartCache struct {
	mu       sync.Mutex
	items    map[string]*CacheItem
	duration time.Duration
	now      func() time.Time
}

func newChartCache(duration time.Duration) *chartCache {
	return &chartCache{
		items:    make(map[string]*CacheItem),
		duration: duration,
		now:      time.Now,
	}
}

func (c *chartCache) get(isin string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[isin]
	if !found {
		return nil, false
	}
	if !c.now().Before(item.Expiration) {
		delete(c.items, isin)
		return nil, false
	}
	return item, true
}

func (c *chartCache) set(isin string, chartData []byte, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[isin] = &CacheItem{
		ChartData:  chartData,
		Caption:    caption,
		Expiration: c.now().Add(c.duration),
	}
}

// Package cache provides in-memory caching for video metadata.
package cache

import (
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	gocache "github.com/patrickmn/go-cache"
)

// MetadataCache maps a source URL to resolved metadata to avoid repeated upstream calls.
// It is process-local; entries are never returned once their TTL has elapsed.
type MetadataCache struct {
	cache *gocache.Cache
}

// NewMetadataCache creates a new MetadataCache with the given TTL and cleanup interval.
func NewMetadataCache(ttl, cleanupInterval time.Duration) *MetadataCache {
	return &MetadataCache{
		cache: gocache.New(ttl, cleanupInterval),
	}
}

// Get retrieves metadata from cache.
func (c *MetadataCache) Get(url string) (*domain.VideoMetadata, bool) {
	if item, found := c.cache.Get(url); found {
		if md, ok := item.(*domain.VideoMetadata); ok {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
			return md, true
		}
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
	return nil, false
}

// Set stores metadata in cache. Concurrent sets for the same key are last-write-wins.
func (c *MetadataCache) Set(url string, md *domain.VideoMetadata) {
	c.cache.Set(url, md, gocache.DefaultExpiration)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess).Inc()
}

// ItemCount returns the number of items in cache, including expired ones not yet swept.
func (c *MetadataCache) ItemCount() int {
	return c.cache.ItemCount()
}

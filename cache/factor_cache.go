package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/trustgate/domain"
)

// DefaultFactorTTL bounds how stale a cached factor listing may be.
const DefaultFactorTTL = 60 * time.Second

// FactorCache is a TTL-bounded cache of provider factor listings, keyed by
// user id. It exists to avoid redundant list-factors calls on hot paths; it
// is an explicit, injectable object so its owner controls its lifetime and
// tests control its TTL.
type FactorCache struct {
	cache *ttlcache.Cache[string, []*domain.Factor]
	ttl   time.Duration
}

// NewFactorCache creates a FactorCache. A non-positive ttl falls back to
// DefaultFactorTTL.
func NewFactorCache(ttl time.Duration) *FactorCache {
	if ttl <= 0 {
		ttl = DefaultFactorTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []*domain.Factor](ttl),
		ttlcache.WithDisableTouchOnHit[string, []*domain.Factor](),
	)

	go cache.Start()

	return &FactorCache{cache: cache, ttl: ttl}
}

// Get returns the cached factor listing for userID, if fresh.
func (c *FactorCache) Get(userID string) ([]*domain.Factor, bool) {
	item := c.cache.Get(userID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores a factor listing for userID.
func (c *FactorCache) Set(userID string, factors []*domain.Factor) {
	c.cache.Set(userID, factors, c.ttl)
}

// Invalidate drops the cached listing for userID. Every factor mutation must
// call this so reads never serve a state the provider no longer holds.
func (c *FactorCache) Invalidate(userID string) {
	c.cache.Delete(userID)
}

// Stop terminates the background expiry loop.
func (c *FactorCache) Stop() {
	c.cache.Stop()
}

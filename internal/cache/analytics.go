package cache

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/im-zhong/eduagent/internal/metrics"
)

// AnalyticsCache holds computed analytics reports keyed by subject and
// report kind. Reports are cheap to recompute but hit several aggregate
// queries, so a short TTL takes the repeat load off Postgres.
type AnalyticsCache struct {
	cache *gocache.Cache
}

// NewAnalyticsCache creates the cache. A zero ttl uses the default.
func NewAnalyticsCache(ttl time.Duration) *AnalyticsCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AnalyticsCache{cache: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached report for (subjectID, kind), if present.
func (c *AnalyticsCache) Get(subjectID uuid.UUID, kind string) (map[string]any, bool) {
	val, found := c.cache.Get(analyticsKey(subjectID, kind))
	if !found {
		metrics.RecordCache(analyticsCacheName, "miss")
		return nil, false
	}
	report, ok := val.(map[string]any)
	if !ok {
		metrics.RecordCache(analyticsCacheName, "miss")
		return nil, false
	}
	metrics.RecordCache(analyticsCacheName, "hit")
	return report, true
}

// Set stores a report for (subjectID, kind).
func (c *AnalyticsCache) Set(subjectID uuid.UUID, kind string, report map[string]any) {
	c.cache.Set(analyticsKey(subjectID, kind), report, gocache.DefaultExpiration)
}

// Invalidate drops every cached report for the subject.
func (c *AnalyticsCache) Invalidate(subjectID uuid.UUID) {
	for _, kind := range []string{"performance", "mistakes", "class"} {
		c.cache.Delete(analyticsKey(subjectID, kind))
	}
}

func analyticsKey(subjectID uuid.UUID, kind string) string {
	return kind + "|" + subjectID.String()
}

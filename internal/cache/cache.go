// Package cache provides TTL caching for retrieval results and analytics
// reports so hot queries do not hit the vector store or Postgres every time.
package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/im-zhong/eduagent/internal/metrics"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
)

const (
	defaultTTL = 5 * time.Minute

	retrievalCacheName = "retrieval"
	analyticsCacheName = "analytics"
)

// RetrievalCache decorates a retrieval strategy with a TTL cache keyed by
// query and scope. Cached bundles are shared pointers; callers must not
// mutate them.
type RetrievalCache struct {
	inner rag.RetrievalStrategy
	cache *gocache.Cache
}

// NewRetrievalCache wraps a strategy. A zero ttl uses the default.
func NewRetrievalCache(inner rag.RetrievalStrategy, ttl time.Duration) *RetrievalCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RetrievalCache{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Name returns the wrapped strategy's name.
func (c *RetrievalCache) Name() string { return c.inner.Name() }

// RetrieveRelevantKnowledge serves from cache when the same query and scope
// were seen within the TTL, delegating otherwise.
func (c *RetrievalCache) RetrieveRelevantKnowledge(ctx context.Context, query string, opts rag.RetrievalOptions) (*rag.ContextBundle, error) {
	key := retrievalKey(c.inner.Name(), query, opts)
	if cached, found := c.cache.Get(key); found {
		if bundle, ok := cached.(*rag.ContextBundle); ok {
			metrics.RecordCache(retrievalCacheName, "hit")
			return bundle, nil
		}
	}
	metrics.RecordCache(retrievalCacheName, "miss")

	bundle, err := c.inner.RetrieveRelevantKnowledge(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, bundle, gocache.DefaultExpiration)
	return bundle, nil
}

// CalculateRelevanceScores delegates without caching; callers pass arbitrary
// candidate sets that do not key well.
func (c *RetrievalCache) CalculateRelevanceScores(ctx context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	return c.inner.CalculateRelevanceScores(ctx, query, items)
}

// RankResults delegates to the wrapped strategy.
func (c *RetrievalCache) RankResults(bundle *rag.ContextBundle, criteria rag.RankingCriteria) *rag.ContextBundle {
	return c.inner.RankResults(bundle, criteria)
}

func retrievalKey(strategy, query string, opts rag.RetrievalOptions) string {
	var b strings.Builder
	b.WriteString(strategy)
	b.WriteByte('|')
	b.WriteString(query)
	b.WriteByte('|')
	if opts.TextbookID != nil {
		b.WriteString(opts.TextbookID.String())
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(opts.Limit))
	if len(opts.KnowledgePointIDs) > 0 {
		ids := make([]string, len(opts.KnowledgePointIDs))
		for i, id := range opts.KnowledgePointIDs {
			ids[i] = id.String()
		}
		sort.Strings(ids)
		b.WriteByte('|')
		b.WriteString(strings.Join(ids, ","))
	}
	return b.String()
}

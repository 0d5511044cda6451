package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
)

// countingStrategy records how many retrieval calls reach it.
type countingStrategy struct {
	calls int
	err   error
}

func (s *countingStrategy) Name() string { return "counting" }
func (s *countingStrategy) RetrieveRelevantKnowledge(_ context.Context, query string, _ rag.RetrievalOptions) (*rag.ContextBundle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &rag.ContextBundle{Query: query, Strategy: "counting"}, nil
}
func (s *countingStrategy) CalculateRelevanceScores(context.Context, string, []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	return map[uuid.UUID]float64{}, nil
}
func (s *countingStrategy) RankResults(bundle *rag.ContextBundle, _ rag.RankingCriteria) *rag.ContextBundle {
	return bundle
}

func TestRetrievalCache_ServesRepeatQueriesFromCache(t *testing.T) {
	inner := &countingStrategy{}
	c := NewRetrievalCache(inner, time.Minute)

	for i := 0; i < 3; i++ {
		bundle, err := c.RetrieveRelevantKnowledge(context.Background(), "photosynthesis", rag.RetrievalOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, "photosynthesis", bundle.Query)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestRetrievalCache_ScopeIsPartOfTheKey(t *testing.T) {
	inner := &countingStrategy{}
	c := NewRetrievalCache(inner, time.Minute)
	textbookID := uuid.New()

	_, err := c.RetrieveRelevantKnowledge(context.Background(), "cells", rag.RetrievalOptions{Limit: 5})
	require.NoError(t, err)
	_, err = c.RetrieveRelevantKnowledge(context.Background(), "cells", rag.RetrievalOptions{Limit: 5, TextbookID: &textbookID})
	require.NoError(t, err)
	_, err = c.RetrieveRelevantKnowledge(context.Background(), "cells", rag.RetrievalOptions{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, inner.calls)
}

func TestRetrievalCache_ErrorsAreNotCached(t *testing.T) {
	inner := &countingStrategy{err: assert.AnError}
	c := NewRetrievalCache(inner, time.Minute)

	_, err := c.RetrieveRelevantKnowledge(context.Background(), "cells", rag.RetrievalOptions{})
	require.Error(t, err)
	_, err = c.RetrieveRelevantKnowledge(context.Background(), "cells", rag.RetrievalOptions{})
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestAnalyticsCache_RoundTripAndInvalidate(t *testing.T) {
	c := NewAnalyticsCache(time.Minute)
	studentID := uuid.New()

	_, found := c.Get(studentID, "performance")
	assert.False(t, found)

	c.Set(studentID, "performance", map[string]any{"average_score": 0.8})
	report, found := c.Get(studentID, "performance")
	require.True(t, found)
	assert.Equal(t, 0.8, report["average_score"])

	c.Invalidate(studentID)
	_, found = c.Get(studentID, "performance")
	assert.False(t, found)
}

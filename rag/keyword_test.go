package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-zhong/eduagent/pkg/types"
)

// fakeKnowledgeSource serves a fixed slice, honoring textbook and id scoping.
type fakeKnowledgeSource struct {
	points []types.KnowledgePoint
	err    error
}

func (f *fakeKnowledgeSource) ListKnowledgePoints(_ context.Context, textbookID *uuid.UUID, ids []uuid.UUID) ([]types.KnowledgePoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []types.KnowledgePoint
	for _, kp := range f.points {
		if textbookID != nil && kp.TextbookID != *textbookID {
			continue
		}
		if len(wanted) > 0 && !wanted[kp.ID] {
			continue
		}
		out = append(out, kp)
	}
	return out, nil
}

// fakeChatClient returns a canned response.
type fakeChatClient struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeChatClient) Complete(_ context.Context, _ string, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeEmbedder hashes each input onto a small deterministic vector so that
// equal texts embed identically.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, 4)
		for j, r := range in {
			v[j%4] += float32(r%31) / 31
		}
		out[i] = v
	}
	return out, nil
}

func testKnowledgePoints(textbookID uuid.UUID) []types.KnowledgePoint {
	return []types.KnowledgePoint{
		{ID: uuid.New(), TextbookID: textbookID, Name: "Photosynthesis", Description: "Plants convert light into chemical energy", ImportanceScore: 0.9},
		{ID: uuid.New(), TextbookID: textbookID, Name: "Cellular Respiration", Description: "Cells break down glucose to release energy", ImportanceScore: 0.7},
		{ID: uuid.New(), TextbookID: textbookID, Name: "Osmosis", Description: "Water moves across a semipermeable membrane", ImportanceScore: 0.4},
	}
}

func TestKeywordRetrieval_RetrieveRelevantKnowledge(t *testing.T) {
	textbookID := uuid.New()
	points := testKnowledgePoints(textbookID)
	s := NewKeywordRetrieval(&fakeKnowledgeSource{points: points})

	bundle, err := s.RetrieveRelevantKnowledge(context.Background(), "photosynthesis energy", RetrievalOptions{TextbookID: &textbookID})
	require.NoError(t, err)
	assert.Equal(t, RetrievalKeyword, bundle.Strategy)
	require.NotEmpty(t, bundle.Items)

	// Name match on "photosynthesis" plus description match on "energy"
	// must outrank a description-only match.
	assert.Equal(t, "Photosynthesis", bundle.Items[0].KnowledgePoint.Name)
	for i := 1; i < len(bundle.Items); i++ {
		assert.LessOrEqual(t, bundle.Items[i].Score, bundle.Items[i-1].Score)
	}
}

func TestKeywordRetrieval_EmptyQuery(t *testing.T) {
	s := NewKeywordRetrieval(&fakeKnowledgeSource{})
	_, err := s.RetrieveRelevantKnowledge(context.Background(), "   ", RetrievalOptions{})
	require.Error(t, err)
}

func TestKeywordRetrieval_NoMatchesIsEmptyNotError(t *testing.T) {
	s := NewKeywordRetrieval(&fakeKnowledgeSource{points: testKnowledgePoints(uuid.New())})
	bundle, err := s.RetrieveRelevantKnowledge(context.Background(), "trigonometry identities", RetrievalOptions{})
	require.NoError(t, err)
	assert.Empty(t, bundle.Items)
}

func TestKeywordRetrieval_LimitApplied(t *testing.T) {
	textbookID := uuid.New()
	s := NewKeywordRetrieval(&fakeKnowledgeSource{points: testKnowledgePoints(textbookID)})
	bundle, err := s.RetrieveRelevantKnowledge(context.Background(), "energy", RetrievalOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, bundle.Items, 1)
}

func TestKeywordRetrieval_CalculateRelevanceScores(t *testing.T) {
	points := testKnowledgePoints(uuid.New())
	s := NewKeywordRetrieval(&fakeKnowledgeSource{points: points})

	scores, err := s.CalculateRelevanceScores(context.Background(), "osmosis", points)
	require.NoError(t, err)
	assert.Greater(t, scores[points[2].ID], scores[points[0].ID])
}

func TestKeywordRetrieval_RankResultsDeterministic(t *testing.T) {
	points := testKnowledgePoints(uuid.New())
	s := NewKeywordRetrieval(&fakeKnowledgeSource{points: points})

	bundle := &ContextBundle{
		Query:    "energy",
		Strategy: RetrievalKeyword,
		Items: []ScoredKnowledgePoint{
			{KnowledgePoint: points[0], Score: 0.5},
			{KnowledgePoint: points[1], Score: 0.5},
			{KnowledgePoint: points[2], Score: 0.2},
		},
	}
	criteria := RankingCriteria{RelevanceWeight: 0.5, ImportanceWeight: 0.5}

	first := s.RankResults(bundle, criteria)
	second := s.RankResults(bundle, criteria)
	require.Equal(t, first.Items, second.Items)

	// Equal relevance resolves by importance under these weights.
	assert.Equal(t, "Photosynthesis", first.Items[0].KnowledgePoint.Name)
	// The input bundle is left untouched.
	assert.Equal(t, 0.5, bundle.Items[0].Score)
}

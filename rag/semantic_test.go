package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
	"github.com/im-zhong/eduagent/vectorstore/memory"
)

func newSemanticFixture(t *testing.T) (RetrievalStrategy, vectorstore.Store, uuid.UUID, []uuid.UUID) {
	t.Helper()

	cfg := vectorstore.DefaultConfig()
	cfg.Dimension = 4
	store, err := memory.New(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))

	embedder := &fakeEmbedder{}
	textbookID := uuid.New()
	contents := []string{
		"Plants convert light into chemical energy",
		"Cells break down glucose to release energy",
	}
	names := []string{"Photosynthesis", "Cellular Respiration"}

	kpIDs := make([]uuid.UUID, len(contents))
	for i, content := range contents {
		vecs, err := embedder.Embed(context.Background(), []string{content})
		require.NoError(t, err)
		kpIDs[i] = uuid.New()
		_, err = store.AddDocument(context.Background(), vectorstore.Document{
			Content:   content,
			Embedding: vecs[0],
			Metadata: map[string]any{
				MetaKnowledgePointID: kpIDs[i].String(),
				MetaTextbookID:       textbookID.String(),
				"name":               names[i],
			},
		})
		require.NoError(t, err)
	}

	return NewSemanticRetrieval(embedder, store), store, textbookID, kpIDs
}

func TestSemanticRetrieval_RetrieveRelevantKnowledge(t *testing.T) {
	s, _, textbookID, kpIDs := newSemanticFixture(t)

	bundle, err := s.RetrieveRelevantKnowledge(context.Background(),
		"Plants convert light into chemical energy",
		RetrievalOptions{TextbookID: &textbookID})
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Items)

	// An exact restatement of the stored content embeds identically, so it
	// must come back first.
	assert.Equal(t, kpIDs[0], bundle.Items[0].KnowledgePoint.ID)
	assert.Equal(t, "Photosynthesis", bundle.Items[0].KnowledgePoint.Name)
	assert.Equal(t, textbookID, bundle.Items[0].KnowledgePoint.TextbookID)
	assert.InDelta(t, 1.0, bundle.Items[0].Score, 1e-5)
}

func TestSemanticRetrieval_TextbookScoping(t *testing.T) {
	s, _, _, _ := newSemanticFixture(t)

	other := uuid.New()
	bundle, err := s.RetrieveRelevantKnowledge(context.Background(), "energy", RetrievalOptions{TextbookID: &other})
	require.NoError(t, err)
	assert.Empty(t, bundle.Items)
}

func TestSemanticRetrieval_KnowledgePointIDFilter(t *testing.T) {
	s, _, textbookID, kpIDs := newSemanticFixture(t)

	bundle, err := s.RetrieveRelevantKnowledge(context.Background(), "energy", RetrievalOptions{
		TextbookID:        &textbookID,
		KnowledgePointIDs: []uuid.UUID{kpIDs[1]},
	})
	require.NoError(t, err)
	require.Len(t, bundle.Items, 1)
	assert.Equal(t, kpIDs[1], bundle.Items[0].KnowledgePoint.ID)
}

func TestSemanticRetrieval_MissingDependencies(t *testing.T) {
	s := NewSemanticRetrieval(nil, nil)
	_, err := s.RetrieveRelevantKnowledge(context.Background(), "energy", RetrievalOptions{})
	require.Error(t, err)
	assert.True(t, eduerrors.IsUnsupportedInput(err))
}

func TestSemanticRetrieval_CalculateRelevanceScores(t *testing.T) {
	s, _, textbookID, _ := newSemanticFixture(t)
	points := testKnowledgePoints(textbookID)

	scores, err := s.CalculateRelevanceScores(context.Background(), points[0].Name+"\n"+points[0].Description, points)
	require.NoError(t, err)
	require.Len(t, scores, len(points))
	// Identical text embeds to an identical vector.
	assert.InDelta(t, 1.0, scores[points[0].ID], 1e-5)
}

func TestSemanticRetrieval_EmbedderFailurePropagates(t *testing.T) {
	cfg := vectorstore.DefaultConfig()
	store, err := memory.New(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))

	s := NewSemanticRetrieval(&fakeEmbedder{err: assert.AnError}, store)
	_, err = s.RetrieveRelevantKnowledge(context.Background(), "energy", RetrievalOptions{})
	require.ErrorIs(t, err, assert.AnError)
}

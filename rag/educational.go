package rag

import (
	"context"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// educationalRetrieval layers pedagogy on top of keyword matching: the
// textual match is scaled by the concept's curricular importance, and
// RankResults can further prefer a target cognitive level.
type educationalRetrieval struct {
	knowledge KnowledgeSource
	base      RetrievalStrategy
}

const (
	// importanceFloor keeps low-importance concepts retrievable instead of
	// zeroing them out.
	importanceFloor = 0.2

	// preferLevelBoost multiplies items whose knowledge point has an
	// ability target at the preferred cognitive level.
	preferLevelBoost = 1.25
)

// NewEducationalRetrieval creates the pedagogy-aware retrieval strategy.
func NewEducationalRetrieval(knowledge KnowledgeSource) RetrievalStrategy {
	return &educationalRetrieval{
		knowledge: knowledge,
		base:      NewKeywordRetrieval(knowledge),
	}
}

func (s *educationalRetrieval) Name() string { return RetrievalEducational }

func (s *educationalRetrieval) RetrieveRelevantKnowledge(ctx context.Context, query string, opts RetrievalOptions) (*ContextBundle, error) {
	if s.knowledge == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no knowledge source configured")
	}

	bundle, err := s.base.RetrieveRelevantKnowledge(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	items := make([]ScoredKnowledgePoint, len(bundle.Items))
	copy(items, bundle.Items)
	for i := range items {
		items[i].Score *= importanceFactor(items[i].KnowledgePoint.ImportanceScore)
	}
	sortScored(items)

	diagnostics := map[string]any{
		"base_strategy":    s.base.Name(),
		"importance_floor": importanceFloor,
	}
	for k, v := range bundle.Diagnostics {
		diagnostics[k] = v
	}

	return &ContextBundle{
		Query:       query,
		Strategy:    s.Name(),
		Items:       items,
		Diagnostics: diagnostics,
	}, nil
}

func (s *educationalRetrieval) CalculateRelevanceScores(ctx context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	base, err := s.base.CalculateRelevanceScores(ctx, query, items)
	if err != nil {
		return nil, err
	}
	scores := make(map[uuid.UUID]float64, len(items))
	for _, kp := range items {
		scores[kp.ID] = base[kp.ID] * importanceFactor(kp.ImportanceScore)
	}
	return scores, nil
}

func (s *educationalRetrieval) RankResults(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle {
	ranked := rankByWeights(bundle, criteria)
	if ranked == nil || criteria.PreferLevel == "" {
		return ranked
	}

	for i := range ranked.Items {
		if ranked.Items[i].KnowledgePoint.CognitiveLevel == criteria.PreferLevel {
			ranked.Items[i].Score *= preferLevelBoost
		}
	}
	sortScored(ranked.Items)
	return ranked
}

func importanceFactor(importance float64) float64 {
	if importance < importanceFloor {
		importance = importanceFloor
	}
	if importance > 1 {
		importance = 1
	}
	return importance
}

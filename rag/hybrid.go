package rag

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/pkg/types"
)

// hybridExtraction runs a primary and a secondary extraction strategy and
// merges their output. The primary's version wins when both extract the
// same concept. An error from either delegate fails the whole call.
type hybridExtraction struct {
	primary   ExtractionStrategy
	secondary ExtractionStrategy
}

// NewHybridExtraction composes two extraction strategies, preferring the
// primary's results on overlap.
func NewHybridExtraction(primary, secondary ExtractionStrategy) ExtractionStrategy {
	return &hybridExtraction{primary: primary, secondary: secondary}
}

func (s *hybridExtraction) Name() string { return ExtractionHybrid }

func (s *hybridExtraction) ExtractKnowledgePoints(ctx context.Context, sections []Section, textbookID uuid.UUID) ([]types.KnowledgePoint, error) {
	fromPrimary, err := s.primary.ExtractKnowledgePoints(ctx, sections, textbookID)
	if err != nil {
		return nil, err
	}
	fromSecondary, err := s.secondary.ExtractKnowledgePoints(ctx, sections, textbookID)
	if err != nil {
		return nil, err
	}

	merged := make([]types.KnowledgePoint, 0, len(fromPrimary)+len(fromSecondary))
	seen := make(map[string]bool, len(fromPrimary))
	for _, kp := range fromPrimary {
		seen[normalizeName(kp.Name)] = true
		merged = append(merged, kp)
	}
	for _, kp := range fromSecondary {
		if seen[normalizeName(kp.Name)] {
			continue
		}
		seen[normalizeName(kp.Name)] = true
		merged = append(merged, kp)
	}
	return merged, nil
}

func (s *hybridExtraction) ExtractAbilityTargets(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.AbilityTarget, error) {
	fromPrimary, err := s.primary.ExtractAbilityTargets(ctx, kp, ec)
	if err != nil {
		return nil, err
	}
	fromSecondary, err := s.secondary.ExtractAbilityTargets(ctx, kp, ec)
	if err != nil {
		return nil, err
	}

	merged := make([]types.AbilityTarget, 0, len(fromPrimary)+len(fromSecondary))
	seen := make(map[types.CognitiveLevel]bool, len(fromPrimary))
	for _, at := range fromPrimary {
		seen[at.CognitiveLevel] = true
		merged = append(merged, at)
	}
	for _, at := range fromSecondary {
		if seen[at.CognitiveLevel] {
			continue
		}
		seen[at.CognitiveLevel] = true
		merged = append(merged, at)
	}
	return merged, nil
}

func (s *hybridExtraction) ExtractCommonMistakes(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.CommonMistake, error) {
	fromPrimary, err := s.primary.ExtractCommonMistakes(ctx, kp, ec)
	if err != nil {
		return nil, err
	}
	fromSecondary, err := s.secondary.ExtractCommonMistakes(ctx, kp, ec)
	if err != nil {
		return nil, err
	}

	merged := make([]types.CommonMistake, 0, len(fromPrimary)+len(fromSecondary))
	seen := make(map[string]bool, len(fromPrimary))
	for _, cm := range fromPrimary {
		seen[normalizeName(cm.PatternName)] = true
		merged = append(merged, cm)
	}
	for _, cm := range fromSecondary {
		if seen[normalizeName(cm.PatternName)] {
			continue
		}
		seen[normalizeName(cm.PatternName)] = true
		merged = append(merged, cm)
	}
	return merged, nil
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// hybridRetrieval blends semantic and keyword retrieval. Items found by
// both strategies score a weighted sum; items found by one keep their
// weighted single-strategy score.
type hybridRetrieval struct {
	semantic RetrievalStrategy
	keyword  RetrievalStrategy

	semanticWeight float64
	keywordWeight  float64
}

// NewHybridRetrieval composes semantic and keyword retrieval with a
// 0.6/0.4 blend.
func NewHybridRetrieval(semantic, keyword RetrievalStrategy) RetrievalStrategy {
	return &hybridRetrieval{
		semantic:       semantic,
		keyword:        keyword,
		semanticWeight: 0.6,
		keywordWeight:  0.4,
	}
}

func (s *hybridRetrieval) Name() string { return RetrievalHybrid }

func (s *hybridRetrieval) RetrieveRelevantKnowledge(ctx context.Context, query string, opts RetrievalOptions) (*ContextBundle, error) {
	semBundle, err := s.semantic.RetrieveRelevantKnowledge(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	kwBundle, err := s.keyword.RetrieveRelevantKnowledge(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	type blended struct {
		kp    types.KnowledgePoint
		score float64
	}
	byID := make(map[uuid.UUID]*blended, len(semBundle.Items)+len(kwBundle.Items))
	for _, item := range semBundle.Items {
		byID[item.KnowledgePoint.ID] = &blended{kp: item.KnowledgePoint, score: s.semanticWeight * item.Score}
	}
	for _, item := range kwBundle.Items {
		if b, ok := byID[item.KnowledgePoint.ID]; ok {
			b.score += s.keywordWeight * item.Score
			// The keyword side carries the full row from persistence.
			b.kp = item.KnowledgePoint
			continue
		}
		byID[item.KnowledgePoint.ID] = &blended{kp: item.KnowledgePoint, score: s.keywordWeight * item.Score}
	}

	items := make([]ScoredKnowledgePoint, 0, len(byID))
	for _, b := range byID {
		items = append(items, ScoredKnowledgePoint{KnowledgePoint: b.kp, Score: b.score})
	}
	sortScored(items)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}

	return &ContextBundle{
		Query:    query,
		Strategy: s.Name(),
		Items:    items,
		Diagnostics: map[string]any{
			"semantic_hits":   len(semBundle.Items),
			"keyword_hits":    len(kwBundle.Items),
			"semantic_weight": s.semanticWeight,
			"keyword_weight":  s.keywordWeight,
		},
	}, nil
}

func (s *hybridRetrieval) CalculateRelevanceScores(ctx context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	semScores, err := s.semantic.CalculateRelevanceScores(ctx, query, items)
	if err != nil {
		return nil, err
	}
	kwScores, err := s.keyword.CalculateRelevanceScores(ctx, query, items)
	if err != nil {
		return nil, err
	}

	scores := make(map[uuid.UUID]float64, len(items))
	for _, kp := range items {
		scores[kp.ID] = s.semanticWeight*semScores[kp.ID] + s.keywordWeight*kwScores[kp.ID]
	}
	return scores, nil
}

func (s *hybridRetrieval) RankResults(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle {
	return rankByWeights(bundle, criteria)
}

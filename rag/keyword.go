package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// keywordRetrieval matches query terms against knowledge point names and
// descriptions. Name hits weigh three times a description hit.
type keywordRetrieval struct {
	knowledge KnowledgeSource
}

const (
	keywordNameWeight        = 3.0
	keywordDescriptionWeight = 1.0
	defaultRetrievalLimit    = 10
)

// NewKeywordRetrieval creates the keyword retrieval strategy backed by the
// given knowledge source.
func NewKeywordRetrieval(knowledge KnowledgeSource) RetrievalStrategy {
	return &keywordRetrieval{knowledge: knowledge}
}

func (s *keywordRetrieval) Name() string { return RetrievalKeyword }

func (s *keywordRetrieval) RetrieveRelevantKnowledge(ctx context.Context, query string, opts RetrievalOptions) (*ContextBundle, error) {
	if s.knowledge == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no knowledge source configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, eduerrors.NewInvalidRequestError(s.Name(), "query must not be empty")
	}

	candidates, err := s.knowledge.ListKnowledgePoints(ctx, opts.TextbookID, opts.KnowledgePointIDs)
	if err != nil {
		return nil, err
	}

	scores, err := s.CalculateRelevanceScores(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	items := make([]ScoredKnowledgePoint, 0, len(candidates))
	for _, kp := range candidates {
		if score := scores[kp.ID]; score > 0 {
			items = append(items, ScoredKnowledgePoint{KnowledgePoint: kp, Score: score})
		}
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
			"candidates": len(candidates),
			"terms":      tokenize(query),
		},
	}, nil
}

func (s *keywordRetrieval) CalculateRelevanceScores(_ context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, eduerrors.NewInvalidRequestError(s.Name(), "query contains no searchable terms")
	}

	scores := make(map[uuid.UUID]float64, len(items))
	for _, kp := range items {
		nameTokens := tokenSet(kp.Name)
		descTokens := tokenSet(kp.Description)
		var raw float64
		for _, term := range terms {
			if nameTokens[term] {
				raw += keywordNameWeight
			}
			if descTokens[term] {
				raw += keywordDescriptionWeight
			}
		}
		// Normalized so a full name match on every term scores 1.
		scores[kp.ID] = raw / (float64(len(terms)) * (keywordNameWeight + keywordDescriptionWeight))
	}
	return scores, nil
}

func (s *keywordRetrieval) RankResults(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle {
	return rankByWeights(bundle, criteria)
}

// rankByWeights re-scores a bundle as a weighted blend of retrieval score
// and the knowledge point's importance, then re-sorts deterministically.
// Shared by the keyword, educational, and hybrid strategies.
func rankByWeights(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle {
	if bundle == nil {
		return nil
	}
	relevanceW := criteria.RelevanceWeight
	importanceW := criteria.ImportanceWeight
	if relevanceW == 0 && importanceW == 0 {
		relevanceW, importanceW = 0.7, 0.3
	}

	ranked := &ContextBundle{
		Query:       bundle.Query,
		Strategy:    bundle.Strategy,
		Items:       make([]ScoredKnowledgePoint, len(bundle.Items)),
		Diagnostics: bundle.Diagnostics,
	}
	copy(ranked.Items, bundle.Items)
	for i := range ranked.Items {
		ranked.Items[i].Score = relevanceW*ranked.Items[i].Score +
			importanceW*ranked.Items[i].KnowledgePoint.ImportanceScore
	}
	sortScored(ranked.Items)
	return ranked
}

// sortScored orders by score descending, breaking ties by name then id so
// identical inputs always produce identical orderings.
func sortScored(items []ScoredKnowledgePoint) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].KnowledgePoint.Name != items[j].KnowledgePoint.Name {
			return items[i].KnowledgePoint.Name < items[j].KnowledgePoint.Name
		}
		return items[i].KnowledgePoint.ID.String() < items[j].KnowledgePoint.ID.String()
	})
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		set[t] = true
	}
	return set
}
